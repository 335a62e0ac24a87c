// Package snapshot implements the Snapshot Manager (C7): point-in-time
// captures of the supervised agent's repository state, taken before a
// risky intervention and restorable if the intervention makes things
// worse.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
)

// Snapshot is a captured repository state: the HEAD commit it was taken
// at, plus a unified-diff patch of any uncommitted worktree changes at
// capture time. go-git has no native "stash" API, so the worktree delta
// is captured as a patch instead and reapplied on Restore.
type Snapshot struct {
	ID         string
	Label      string // human-readable reason the snapshot was taken, e.g. "pre-intervention-missing_import"
	Signature  string // the recall.Signature this snapshot is pinned to, if any
	TakenAt    time.Time
	HeadCommit plumbing.Hash
	Stash      string // unified diff of the worktree at capture time, may be empty
	SizeBytes  int64  // len(Stash), tracked separately so GC can size-cap without re-parsing Stash
}

// Manager creates, restores, and garbage-collects Snapshots for a single
// repository, persisting their metadata to an Index alongside the git
// repository itself.
type Manager struct {
	repo  *git.Repository
	index *Index
}

// Open opens the git repository rooted at path and the snapshot index
// file at path/.cake/snapshots.json, creating the index fresh if absent.
func Open(path string) (*Manager, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening repository: %w", err)
	}
	idx, err := OpenIndex(filepath.Join(path, ".cake", "snapshots.json"))
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening index: %w", err)
	}
	return &Manager{repo: repo, index: idx}, nil
}

// Create captures the repository's current HEAD and any uncommitted
// worktree changes as a new Snapshot labeled label and tagged with
// signature for later GC pinning, then persists it to the index.
func (m *Manager) Create(label, signature string) (Snapshot, error) {
	head, err := m.repo.Head()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading HEAD: %w", err)
	}

	wt, err := m.repo.Worktree()
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading worktree: %w", err)
	}

	patch, err := m.worktreePatch(wt, head.Hash())
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: computing worktree patch: %w", err)
	}

	snap := Snapshot{
		ID:         uuid.NewString(),
		Label:      label,
		Signature:  signature,
		TakenAt:    time.Now().UTC(),
		HeadCommit: head.Hash(),
		Stash:      patch,
		SizeBytes:  int64(len(patch)),
	}

	if m.index != nil {
		if err := m.index.Put(snap); err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: persisting index entry: %w", err)
		}
	}
	return snap, nil
}

// List returns every snapshot recorded in the index, oldest first.
func (m *Manager) List() []Snapshot {
	if m.index == nil {
		return nil
	}
	return m.index.List()
}

// Get returns the indexed snapshot for id, if present.
func (m *Manager) Get(id string) (Snapshot, bool) {
	if m.index == nil {
		return Snapshot{}, false
	}
	return m.index.Get(id)
}

// RestoreByID looks up id in the index and restores it, returning an
// error if no such snapshot is recorded.
func (m *Manager) RestoreByID(id string) error {
	snap, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("snapshot: no indexed snapshot %q", id)
	}
	return m.Restore(snap)
}

// GC removes indexed snapshots older than maxAge or past maxSizeBytes in
// aggregate, unless pinned to a signature lookup still considers live.
func (m *Manager) GC(maxAge time.Duration, maxSizeBytes int64, lookup SignatureLookup, now time.Time) ([]string, error) {
	if m.index == nil {
		return nil, nil
	}
	return m.index.GC(maxAge, maxSizeBytes, lookup, now)
}

// worktreePatch computes a unified diff between the commit at headHash and
// the current worktree contents, covering both tracked modifications and
// untracked additions so Restore can fully reconstruct the captured state.
func (m *Manager) worktreePatch(wt *git.Worktree, headHash plumbing.Hash) (string, error) {
	status, err := wt.Status()
	if err != nil {
		return "", err
	}
	if status.IsClean() {
		return "", nil
	}

	commit, err := m.repo.CommitObject(headHash)
	if err != nil {
		return "", err
	}
	headTree, err := commit.Tree()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for file, st := range status {
		if st.Worktree == git.Unmodified {
			continue
		}
		if err := writeFilePatch(&buf, headTree, wt, file); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// writeFilePatch appends a simple before/after text block for one changed
// file. This is intentionally a lightweight unified-diff-like record
// rather than a byte-perfect patch: Restore reconstructs file contents
// directly from the recorded "after" blocks, so the exact diff hunk
// format is an internal implementation detail, not an external contract.
func writeFilePatch(w io.Writer, headTree *object.Tree, wt *git.Worktree, file string) error {
	var before string
	if f, err := headTree.File(file); err == nil {
		if content, err := f.Contents(); err == nil {
			before = content
		}
	}

	after, err := readWorktreeFile(wt, file)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- %s\n", file)
	fmt.Fprintf(w, "+++ %s\n", file)
	fmt.Fprintf(w, "@@BEFORE@@\n%s\n@@AFTER@@\n%s\n@@END@@\n", before, after)
	return nil
}

func readWorktreeFile(wt *git.Worktree, file string) (string, error) {
	f, err := wt.Filesystem.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil // treat a missing (deleted) file as empty "after" content
		}
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Restore resets the worktree to snap.HeadCommit and reapplies the
// recorded worktree patch, if any.
func (m *Manager) Restore(snap Snapshot) error {
	wt, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("snapshot: reading worktree: %w", err)
	}

	if err := wt.Reset(&git.ResetOptions{Commit: snap.HeadCommit, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("snapshot: resetting to %s: %w", snap.HeadCommit, err)
	}

	if snap.Stash == "" {
		return nil
	}
	return applyPatch(wt, snap.Stash)
}

// patchBlock is one file's recorded before/after content from
// writeFilePatch's block format.
type patchBlock struct {
	file  string
	after string
}

// applyPatch reconstructs each file's "after" content recorded in patch.
// It parses CAKE's own lightweight block format (writeFilePatch) rather
// than running a general unified-diff applier, since Restore only ever
// needs to reconstruct whole-file contents CAKE itself produced.
func applyPatch(wt *git.Worktree, patch string) error {
	for _, b := range splitPatchBlocks(patch) {
		f, err := wt.Filesystem.Create(b.file)
		if err != nil {
			return fmt.Errorf("snapshot: restoring %s: %w", b.file, err)
		}
		_, werr := f.Write([]byte(b.after))
		cerr := f.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
	}
	return nil
}

// splitPatchBlocks parses the "--- file" / "@@BEFORE@@" / "@@AFTER@@" /
// "@@END@@" block format written by writeFilePatch.
func splitPatchBlocks(patch string) []patchBlock {
	var blocks []patchBlock
	lines := splitLines(patch)

	var curFile string
	var inAfter bool
	var afterBuf bytes.Buffer

	for _, line := range lines {
		switch {
		case len(line) > 4 && line[:4] == "--- ":
			curFile = line[4:]
		case line == "@@AFTER@@":
			inAfter = true
			afterBuf.Reset()
		case line == "@@END@@":
			inAfter = false
			// writeFilePatch writes one '\n' after the content; drop it.
			after := bytes.TrimSuffix(afterBuf.Bytes(), []byte("\n"))
			blocks = append(blocks, patchBlock{file: curFile, after: string(after)})
		case inAfter:
			afterBuf.WriteString(line)
			afterBuf.WriteByte('\n')
		}
	}
	return blocks
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
