package watchdog

import (
	"sync"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// BoundedQueue is the Controller-facing queue the watchdog publishes
// ErrorEvents into. When full, the oldest LOW-severity pending event is
// dropped first, then MEDIUM; HIGH and CRITICAL events are never dropped.
// Ordering within a stream is preserved for events that survive.
type BoundedQueue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	items    []queued
	capacity int

	dropped map[event.Severity]int
}

type queued struct {
	evt event.Event
	sev event.Severity
}

// NewBoundedQueue constructs a queue with the given capacity.
func NewBoundedQueue(capacity int) *BoundedQueue {
	return &BoundedQueue{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		dropped:  make(map[event.Severity]int),
	}
}

// Push enqueues evt with the given pre-computed severity bucket (the
// watchdog itself doesn't classify — it only knows coarse severity well
// enough to prioritize backpressure; the classifier assigns the final
// Classification downstream). If the queue is at capacity, the oldest
// low-priority pending item is evicted to make room; if every pending item
// is HIGH/CRITICAL, the queue grows past capacity rather than dropping one
// of them.
func (q *BoundedQueue) Push(evt event.Event, sev event.Severity) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.evictOneLocked()
	}
	q.items = append(q.items, queued{evt: evt, sev: sev})
	q.signalLocked()
}

func (q *BoundedQueue) evictOneLocked() {
	// Prefer evicting the oldest LOW, then oldest MEDIUM. Never evict
	// HIGH/CRITICAL.
	for _, target := range []event.Severity{event.SeverityLow, event.SeverityMedium} {
		for i, it := range q.items {
			if it.sev == target {
				q.dropped[target]++
				q.items = append(q.items[:i], q.items[i+1:]...)
				return
			}
		}
	}
	// Nothing droppable found; queue grows by one over capacity rather
	// than losing a HIGH/CRITICAL event.
}

func (q *BoundedQueue) signalLocked() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest queued event, blocking (respecting
// done) until one is available.
func (q *BoundedQueue) Pop(done <-chan struct{}) (event.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it.evt, true
		}
		q.mu.Unlock()

		select {
		case <-done:
			return event.Event{}, false
		case <-q.notEmpty:
		}
	}
}

// Dropped returns the cumulative drop counts by severity, surfaced as an
// observability signal.
func (q *BoundedQueue) Dropped() map[event.Severity]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[event.Severity]int, len(q.dropped))
	for k, v := range q.dropped {
		out[k] = v
	}
	return out
}

// Len reports the number of currently pending events.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
