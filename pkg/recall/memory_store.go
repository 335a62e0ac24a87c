package recall

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/codeready-toolchain/cake/pkg/shared/textsim"
)

// memoryStore is the degraded-mode fallback: a mutex-guarded map with the
// same TTL semantics as the durable store but no persistence across
// restart, using a read-write mutex and lazy TTL expiry on read.
type memoryStore struct {
	mu      sync.RWMutex
	records map[Signature]Record
}

// newMemoryStore constructs an empty in-memory store.
func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[Signature]Record)}
}

// NewMemoryStore constructs a Store backed purely by memory, with no
// durable persistence. Used directly by callers that want the degraded
// backend without a DegradingStore wrapper — tests, and any deployment
// that explicitly opts out of the SQLite backend.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func (m *memoryStore) Record(_ context.Context, sig Signature, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sig]
	if !ok {
		rec = Record{
			Signature: sig,
			Kind:      fields.Kind,
			FirstSeen: fields.Now,
		}
	}
	rec.Remainder = fields.Remainder
	rec.LastSeen = fields.Now
	rec.OccurrenceCount++
	rec.ExpiresAt = fields.Now.Add(ttlFor(rec.OccurrenceCount))
	m.records[sig] = rec
	return nil
}

func (m *memoryStore) Lookup(_ context.Context, sig Signature) (Record, bool, error) {
	m.mu.RLock()
	rec, ok := m.records[sig]
	m.mu.RUnlock()
	if !ok || isExpired(rec, time.Now()) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (m *memoryStore) Similar(_ context.Context, tokens []string, threshold float64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var matches []scoredRecord
	for _, rec := range m.records {
		if isExpired(rec, now) {
			continue
		}
		score := textsim.JaccardTokenSet(tokens, strings.Fields(rec.Remainder))
		if score >= threshold {
			matches = append(matches, scoredRecord{rec: rec, score: score})
		}
	}
	return bestFirst(matches), nil
}

func (m *memoryStore) MarkIntervention(_ context.Context, sig Signature, text string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sig]
	if !ok {
		return errNotFound
	}
	if rec.InterventionCount < rec.OccurrenceCount {
		rec.InterventionCount++
	}
	rec.LastIntervention = text
	rec.LastInterventionAt = now
	m.records[sig] = rec
	return nil
}

func (m *memoryStore) MarkOutcome(_ context.Context, sig Signature, success bool) error {
	if !success {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[sig]
	if !ok {
		return errNotFound
	}
	if rec.SuccessCount < rec.InterventionCount {
		rec.SuccessCount++
	}
	m.records[sig] = rec
	return nil
}

func (m *memoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for sig, rec := range m.records {
		if isExpired(rec, now) {
			delete(m.records, sig)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) Degraded() bool { return true }

func (m *memoryStore) Close() error { return nil }

func isExpired(rec Record, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && now.After(rec.ExpiresAt)
}

// snapshotAll returns a copy of every resident record, used by
// DegradingStore when flushing pending writes back to the durable store on
// reconnect.
func (m *memoryStore) snapshotAll() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}
