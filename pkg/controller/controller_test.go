package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/cake/pkg/adapter"
	"github.com/codeready-toolchain/cake/pkg/classifier"
	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/operator"
	"github.com/codeready-toolchain/cake/pkg/recall"
	"github.com/codeready-toolchain/cake/pkg/voice"
	"github.com/codeready-toolchain/cake/pkg/watchdog"
)

type fakeEscalator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEscalator) Escalate(ctx context.Context, cl event.Classification, rec recall.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeEscalator) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testBuilder(t *testing.T) *operator.Builder {
	t.Helper()
	corpus := voice.NewCorpusFromTexts([]string{
		voice.Prefix + "Stop. Check the missing import in app.py.",
		voice.Prefix + "Stop. Run the installer for the package missing from app.py.",
		voice.Prefix + "Stop. Fix the unresolved import in app.py; it has recurred 3 times.",
	})
	gate := voice.NewGate(voice.DefaultConfig(), corpus)
	return operator.NewBuilder(gate)
}

func newTestController(t *testing.T, escalator Escalator) (*Controller, *watchdog.BoundedQueue, recall.Store) {
	t.Helper()
	store := recall.NewMemoryStore()
	clsfr := classifier.New(classifier.Config{})
	queue := watchdog.NewBoundedQueue(16)
	registry := adapter.NewRegistry(adapter.NewCannedAdapter())
	c := New(queue, clsfr, store, testBuilder(t), registry, nil, escalator)
	return c, queue, store
}

func TestController_HighSeverityEventTriggersIntervention(t *testing.T) {
	esc := &fakeEscalator{}
	c, queue, store := newTestController(t, esc)

	evt := event.Event{
		Kind:      event.KindImportMissing,
		Source:    event.SourceStderr,
		Raw:       "ImportError: No module named 'foo'",
		Path:      "app.py",
		Timestamp: time.Now().UTC(),
	}
	queue.Push(evt, event.SeverityHigh)

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(done)
	}()
	c.Run(context.Background(), done)

	assert.Equal(t, StateMonitoring, c.State())

	sig := recall.Sign(evt)
	rec, ok, err := store.Lookup(context.Background(), sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, rec.InterventionCount)
}

func TestController_LowSeverityDoesNotIntervene(t *testing.T) {
	esc := &fakeEscalator{}
	c, queue, store := newTestController(t, esc)

	evt := event.Event{
		Kind:      event.KindCoverageDrop,
		Source:    event.SourceStdout,
		Raw:       "coverage dropped",
		Timestamp: time.Now().UTC(),
	}
	queue.Push(evt, event.SeverityLow)

	done := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(done)
	}()
	c.Run(context.Background(), done)

	assert.Equal(t, 0, esc.Count())

	rec, ok, err := store.Lookup(context.Background(), recall.Sign(evt))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rec.InterventionCount)
}

func TestFSM_RejectsIllegalTransition(t *testing.T) {
	assert.False(t, canTransition(StateMonitoring, StateRecovering))
	assert.True(t, canTransition(StateMonitoring, StateDetecting))
}
