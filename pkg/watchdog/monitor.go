// Package watchdog implements the stream monitor (C5): non-blocking,
// pattern-based extraction of error events from the supervised agent's
// stdout/stderr streams.
package watchdog

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// Monitor runs one reader goroutine per stream, matching each line against
// the active PatternSet and pushing extracted events onto a shared
// BoundedQueue. Each goroutine selects over ctx.Done() with no blocking
// on the consumer.
type Monitor struct {
	queue    *BoundedQueue
	patterns atomic.Pointer[PatternSet] // hot-reloadable

	seq uint64

	wg sync.WaitGroup

	staleMu       sync.Mutex
	failureCounts map[event.Source]int
}

// NewMonitor constructs a Monitor publishing into queue, starting with the
// given initial pattern set.
func NewMonitor(queue *BoundedQueue, initial *PatternSet) *Monitor {
	m := &Monitor{queue: queue, failureCounts: make(map[event.Source]int)}
	m.patterns.Store(initial)
	return m
}

// SetPatterns hot-swaps the active pattern set; in-flight matching
// continues to use whichever pointer it already loaded for the current
// line, matching the config snapshot's atomic-swap semantics.
func (m *Monitor) SetPatterns(ps *PatternSet) {
	m.patterns.Store(ps)
}

// WatchStream starts a reader goroutine for r, tagged with source. The
// goroutine exits when r is closed/exhausted or ctx is cancelled; on exit
// it pushes a terminal synthetic Unknown event with an empty Raw. A final
// line without a trailing newline is matched like any other line and is
// not copied into the terminal event.
func (m *Monitor) WatchStream(ctx context.Context, r io.Reader, source event.Source) {
	m.wg.Add(1)
	go m.readLoop(ctx, r, source)
}

// Wait blocks until every watched stream has terminated.
func (m *Monitor) Wait() { m.wg.Wait() }

func (m *Monitor) readLoop(ctx context.Context, r io.Reader, source event.Source) {
	defer m.wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			m.emitTerminal(source)
			return
		default:
		}
		m.processLine(scanner.Text(), source)
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("watchdog: stream read failure", "source", source, "error", err)
		m.recordFailure(source)
	}
	m.emitTerminal(source)
}

func (m *Monitor) processLine(line string, source event.Source) {
	ps := m.patterns.Load()
	if ps == nil {
		return
	}
	kind, path, lineNo, matched := ps.Match(line)
	if !matched {
		return
	}

	evt := event.Event{
		Seq:       atomic.AddUint64(&m.seq, 1),
		Kind:      kind,
		Source:    source,
		Raw:       line,
		Path:      path,
		Line:      lineNo,
		Timestamp: time.Now().UTC(),
	}
	m.queue.Push(evt, coarseSeverity(kind))
}

// emitTerminal pushes a terminal synthetic Unknown event, with an empty
// Raw, marking stream closure.
func (m *Monitor) emitTerminal(source event.Source) {
	evt := event.Event{
		Seq:       atomic.AddUint64(&m.seq, 1),
		Kind:      event.KindUnknown,
		Source:    source,
		Raw:       "",
		Timestamp: time.Now().UTC(),
	}
	m.queue.Push(evt, event.SeverityLow)
}

// recordFailure counts read failures per source over the Monitor's
// lifetime (the count is never reset); three or more failures log the
// source as degraded for observability.
func (m *Monitor) recordFailure(source event.Source) {
	m.staleMu.Lock()
	defer m.staleMu.Unlock()
	m.failureCounts[source]++
	if m.failureCounts[source] >= 3 {
		slog.Warn("watchdog: stream marked degraded after repeated failures", "source", source)
	}
}

// coarseSeverity gives the watchdog just enough severity signal to drive
// queue backpressure before the classifier has run; it intentionally
// mirrors, but does not replace, the classifier's own severity table.
func coarseSeverity(kind event.Kind) event.Severity {
	switch kind {
	case event.KindImportMissing, event.KindSyntaxError:
		return event.SeverityHigh
	case event.KindAttributeError, event.KindTestFailure:
		return event.SeverityMedium
	case event.KindCoverageDrop:
		return event.SeverityLow
	default:
		return event.SeverityLow
	}
}
