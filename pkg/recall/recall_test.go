package recall

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecordAndLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sig := ParseSignatureOrPanic(t, "missing-import")
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, sig, Fields{Kind: "import_missing", Now: now}))
	rec, ok, err := store.Lookup(ctx, sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.OccurrenceCount)

	require.NoError(t, store.Record(ctx, sig, Fields{Kind: "import_missing", Now: now.Add(time.Minute)}))
	rec, ok, err = store.Lookup(ctx, sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.OccurrenceCount)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	orig := DefaultTTL
	t.Cleanup(func() { DefaultTTL = orig })
	DefaultTTL = time.Hour

	store := NewMemoryStore().(*memoryStore)
	ctx := context.Background()
	sig := ParseSignatureOrPanic(t, "ttl-case")
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, sig, Fields{Kind: "syntax_error", Now: now}))

	_, ok, err := store.Lookup(ctx, sig)
	require.NoError(t, err)
	assert.True(t, ok, "record should be visible before its TTL elapses")

	// Force the record past its expiry without waiting out a real TTL.
	rec := store.records[sig]
	rec.ExpiresAt = now.Add(-time.Minute)
	store.records[sig] = rec

	_, ok, err = store.Lookup(ctx, sig)
	require.NoError(t, err)
	assert.False(t, ok, "expired record must not be returned by Lookup")
}

func TestMemoryStore_ExtendedTTLAfterThreshold(t *testing.T) {
	origDefault, origExtended := DefaultTTL, ExtendedTTL
	t.Cleanup(func() { DefaultTTL, ExtendedTTL = origDefault, origExtended })
	DefaultTTL = time.Hour
	ExtendedTTL = 3 * time.Hour

	store := NewMemoryStore().(*memoryStore)
	ctx := context.Background()
	sig := ParseSignatureOrPanic(t, "extended-ttl")
	now := time.Now().UTC()

	for i := 0; i < ExtendedTTLThreshold; i++ {
		require.NoError(t, store.Record(ctx, sig, Fields{Kind: "import_missing", Now: now}))
	}
	rec := store.records[sig]
	assert.Equal(t, ExtendedTTLThreshold, rec.OccurrenceCount)
	assert.WithinDuration(t, now.Add(ExtendedTTL), rec.ExpiresAt, time.Second)
}

func TestMemoryStore_SimilarMatchesOnRemainderNotKind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	sigA := ParseSignatureOrPanic(t, "app-py")
	sigB := ParseSignatureOrPanic(t, "lib-py")

	remainder := NormalizeRemainder("ImportError: No module named 'requests'")
	require.NoError(t, store.Record(ctx, sigA, Fields{Kind: "import_missing", Remainder: remainder, Now: now}))

	otherRemainder := NormalizeRemainder("FAILED tests/test_x.py::test_y")
	require.NoError(t, store.Record(ctx, sigB, Fields{Kind: "import_missing", Remainder: otherRemainder, Now: now}))

	query := NormalizedTokens("ImportError: No module named 'flask'")
	matches, err := store.Similar(ctx, query, SiblingMatchThreshold)
	require.NoError(t, err)
	require.Len(t, matches, 1, "only the record whose remainder actually overlaps the query should match")
	assert.Equal(t, sigA, matches[0].Signature)
}

func TestMemoryStore_SimilarReturnsNoneBelowThreshold(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	sig := ParseSignatureOrPanic(t, "unrelated")
	require.NoError(t, store.Record(ctx, sig, Fields{
		Kind:      "test_failure",
		Remainder: NormalizeRemainder("FAILED tests/test_x.py::test_y"),
		Now:       now,
	}))

	query := NormalizedTokens("ImportError: No module named 'requests'")
	matches, err := store.Similar(ctx, query, SiblingMatchThreshold)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

type alwaysFailingStore struct{ memoryStore *memoryStore }

func (a alwaysFailingStore) Record(ctx context.Context, sig Signature, fields Fields) error {
	return errors.New("durable store unavailable")
}
func (a alwaysFailingStore) Lookup(ctx context.Context, sig Signature) (Record, bool, error) {
	return a.memoryStore.Lookup(ctx, sig)
}
func (a alwaysFailingStore) Similar(ctx context.Context, tokens []string, threshold float64) ([]Record, error) {
	return a.memoryStore.Similar(ctx, tokens, threshold)
}
func (a alwaysFailingStore) MarkIntervention(ctx context.Context, sig Signature, text string, now time.Time) error {
	return a.memoryStore.MarkIntervention(ctx, sig, text, now)
}
func (a alwaysFailingStore) MarkOutcome(ctx context.Context, sig Signature, success bool) error {
	return a.memoryStore.MarkOutcome(ctx, sig, success)
}
func (a alwaysFailingStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return a.memoryStore.PurgeExpired(ctx, now)
}
func (a alwaysFailingStore) Degraded() bool { return false }
func (a alwaysFailingStore) Close() error   { return nil }

func TestDegradingStore_FallsBackToMemoryOnDurableFailure(t *testing.T) {
	failing := alwaysFailingStore{memoryStore: newMemoryStore()}
	d := NewDegradingStore(failing, "", nil)

	var degradeErr error
	d.OnDegrade(func(err error) { degradeErr = err })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sig := ParseSignatureOrPanic(t, "degrade-case")
	err := d.Record(ctx, sig, Fields{Kind: "import_missing", Now: time.Now().UTC()})
	require.NoError(t, err, "Record falls back to the in-memory store rather than surfacing the durable failure")
	assert.True(t, d.Degraded())
	assert.Error(t, degradeErr)

	rec, ok, err := d.Lookup(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.OccurrenceCount)
}

// ParseSignatureOrPanic builds a deterministic Signature from an arbitrary
// label for use as a map key in tests, without depending on Sign's
// event.Event-shaped input.
func ParseSignatureOrPanic(t *testing.T, label string) Signature {
	t.Helper()
	var sig Signature
	copy(sig[:], label)
	return sig
}
