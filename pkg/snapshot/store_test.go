package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	live map[string]bool
}

func (f fakeLookup) IsLive(sig string) bool { return f.live[sig] }

func TestIndex_PutAndGet(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	snap := Snapshot{ID: "snap-1", TakenAt: time.Now().UTC()}
	require.NoError(t, idx.Put(snap))

	got, ok := idx.Get("snap-1")
	require.True(t, ok)
	assert.Equal(t, snap.ID, got.ID)
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	idx, err := OpenIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Put(Snapshot{ID: "snap-1", TakenAt: time.Now().UTC()}))

	reopened, err := OpenIndex(path)
	require.NoError(t, err)
	assert.Len(t, reopened.List(), 1)
}

func TestIndex_GC_RemovesStaleUnpinned(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, idx.Put(Snapshot{ID: "stale", TakenAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, idx.Put(Snapshot{ID: "fresh", TakenAt: now}))

	removed, err := idx.GC(24*time.Hour, 0, fakeLookup{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, removed)
	assert.Len(t, idx.List(), 1)
}

func TestIndex_GC_RetainsPinnedSnapshot(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, idx.Put(Snapshot{ID: "pinned", Signature: "sig-1", TakenAt: now.Add(-48 * time.Hour)}))

	removed, err := idx.GC(24*time.Hour, 0, fakeLookup{live: map[string]bool{"sig-1": true}}, now)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Len(t, idx.List(), 1)
}

func TestIndex_GC_EvictsOldestOverSizeCap(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, idx.Put(Snapshot{ID: "oldest", TakenAt: now.Add(-2 * time.Hour), SizeBytes: 100}))
	require.NoError(t, idx.Put(Snapshot{ID: "middle", TakenAt: now.Add(-1 * time.Hour), SizeBytes: 100}))
	require.NoError(t, idx.Put(Snapshot{ID: "newest", TakenAt: now, SizeBytes: 100}))

	removed, err := idx.GC(24*time.Hour, 150, fakeLookup{}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"oldest", "middle"}, removed)
	assert.Len(t, idx.List(), 1)
}

func TestIndex_GC_SizeCapSkipsPinned(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenIndex(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, idx.Put(Snapshot{ID: "pinned", Signature: "sig-1", TakenAt: now.Add(-2 * time.Hour), SizeBytes: 100}))
	require.NoError(t, idx.Put(Snapshot{ID: "newer", TakenAt: now, SizeBytes: 100}))

	removed, err := idx.GC(24*time.Hour, 50, fakeLookup{live: map[string]bool{"sig-1": true}}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"newer"}, removed)
	assert.Len(t, idx.List(), 1)
}
