package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Index is the on-disk registry of Snapshots for a repository, persisted
// as a single JSON file rather than a database: snapshot metadata is
// small, local to one machine, and never queried concurrently from
// multiple processes, so a load-once, rewrite-whole-file-on-change flat
// file is simpler than a schema migration for it.
type Index struct {
	mu   sync.Mutex
	path string
	byID map[string]Snapshot
}

// OpenIndex loads path if it exists, or starts an empty index.
func OpenIndex(path string) (*Index, error) {
	idx := &Index{path: path, byID: make(map[string]Snapshot)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: reading index: %w", err)
	}

	var entries []Snapshot
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("snapshot: parsing index: %w", err)
	}
	for _, e := range entries {
		idx.byID[e.ID] = e
	}
	return idx, nil
}

// Put records snap in the index and persists it.
func (idx *Index) Put(snap Snapshot) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byID[snap.ID] = snap
	return idx.flushLocked()
}

// Get returns the snapshot for id, if present.
func (idx *Index) Get(id string) (Snapshot, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	s, ok := idx.byID[id]
	return s, ok
}

// List returns every indexed snapshot, oldest first.
func (idx *Index) List() []Snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Snapshot, 0, len(idx.byID))
	for _, s := range idx.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out
}

// Remove deletes id from the index and persists the change.
func (idx *Index) Remove(id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byID, id)
	return idx.flushLocked()
}

func (idx *Index) flushLocked() error {
	out := make([]Snapshot, 0, len(idx.byID))
	for _, s := range idx.byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshaling index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("snapshot: creating index directory: %w", err)
	}
	return os.WriteFile(idx.path, data, 0o644)
}

// SignatureLookup reports whether a recall signature is still unexpired,
// so GC knows which pinned snapshots to keep regardless of age. The
// snapshot manager depends only on this narrow interface, not the whole
// recall store, to avoid a storage-layer import cycle.
type SignatureLookup interface {
	IsLive(signature string) bool
}

// GC removes indexed snapshots older than maxAge, then, if the aggregate
// size of what remains still exceeds maxSizeBytes (a value of 0 disables
// the size cap), evicts the oldest remaining snapshots until it no
// longer does. Either pass skips a snapshot pinned to a signature lookup
// still considers live, regardless of age or size.
func (idx *Index) GC(maxAge time.Duration, maxSizeBytes int64, lookup SignatureLookup, now time.Time) ([]string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pinned := func(s Snapshot) bool {
		return s.Signature != "" && lookup != nil && lookup.IsLive(s.Signature)
	}

	var removed []string
	for id, s := range idx.byID {
		if now.Sub(s.TakenAt) <= maxAge || pinned(s) {
			continue
		}
		delete(idx.byID, id)
		removed = append(removed, id)
	}

	if maxSizeBytes > 0 {
		remaining := make([]Snapshot, 0, len(idx.byID))
		var total int64
		for _, s := range idx.byID {
			remaining = append(remaining, s)
			total += s.SizeBytes
		}
		sort.Slice(remaining, func(i, j int) bool { return remaining[i].TakenAt.Before(remaining[j].TakenAt) })

		for _, s := range remaining {
			if total <= maxSizeBytes {
				break
			}
			if pinned(s) {
				continue
			}
			delete(idx.byID, s.ID)
			removed = append(removed, s.ID)
			total -= s.SizeBytes
		}
	}

	if len(removed) > 0 {
		if err := idx.flushLocked(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
