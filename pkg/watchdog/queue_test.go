package watchdog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/cake/pkg/event"
)

func push(q *BoundedQueue, raw string, sev event.Severity) {
	q.Push(event.Event{Raw: raw}, sev)
}

func drain(t *testing.T, q *BoundedQueue, n int) []string {
	t.Helper()
	done := make(chan struct{})
	close(done)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		evt, ok := q.Pop(done)
		require.True(t, ok)
		out = append(out, evt.Raw)
	}
	return out
}

func TestBoundedQueue_EvictsOldestLowBeforeMedium(t *testing.T) {
	q := NewBoundedQueue(2)

	push(q, "low-1", event.SeverityLow)
	push(q, "medium-1", event.SeverityMedium)
	push(q, "low-2", event.SeverityLow) // queue full, low-1 should be evicted

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 1, q.Dropped()[event.SeverityLow])

	remaining := drain(t, q, 2)
	assert.Equal(t, []string{"medium-1", "low-2"}, remaining, "eviction must preserve relative order of survivors")
}

func TestBoundedQueue_NeverDropsHighOrCritical(t *testing.T) {
	q := NewBoundedQueue(2)

	push(q, "high-1", event.SeverityHigh)
	push(q, "critical-1", event.SeverityCritical)
	push(q, "high-2", event.SeverityHigh) // nothing droppable, queue grows over capacity

	assert.Equal(t, 3, q.Len(), "queue must grow rather than drop a HIGH/CRITICAL event")
	assert.Empty(t, q.Dropped())

	remaining := drain(t, q, 3)
	assert.Equal(t, []string{"high-1", "critical-1", "high-2"}, remaining)
}

func TestBoundedQueue_FallsBackToMediumWhenNoLowPresent(t *testing.T) {
	q := NewBoundedQueue(2)

	push(q, "medium-1", event.SeverityMedium)
	push(q, "high-1", event.SeverityHigh)
	push(q, "medium-2", event.SeverityMedium) // no LOW pending, oldest MEDIUM is evicted instead

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 1, q.Dropped()[event.SeverityMedium])

	remaining := drain(t, q, 2)
	assert.Equal(t, []string{"high-1", "medium-2"}, remaining)
}

func TestBoundedQueue_PopBlocksUntilDoneOrPush(t *testing.T) {
	q := NewBoundedQueue(4)
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(done)
		result <- ok
	}()

	close(done)
	assert.False(t, <-result, "Pop must return false once done is closed with nothing queued")
}
