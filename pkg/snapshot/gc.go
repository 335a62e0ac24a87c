package snapshot

import (
	"context"
	"log/slog"
	"time"
)

// GCLoop periodically calls Manager.GC in the background: a ticker driven
// by ctx.Done(), idempotent, safe to Start/Stop repeatedly.
type GCLoop struct {
	mgr          *Manager
	interval     time.Duration
	maxAge       time.Duration
	maxSizeBytes int64
	lookup       SignatureLookup

	cancel context.CancelFunc
	done   chan struct{}
}

// NewGCLoop constructs a GC loop for mgr, running every interval and
// retaining snapshots younger than maxAge or within maxSizeBytes
// aggregate, except those pinned to a signature lookup reports live.
func NewGCLoop(mgr *Manager, interval, maxAge time.Duration, maxSizeBytes int64, lookup SignatureLookup) *GCLoop {
	return &GCLoop{mgr: mgr, interval: interval, maxAge: maxAge, maxSizeBytes: maxSizeBytes, lookup: lookup}
}

// Start launches the background GC loop.
func (g *GCLoop) Start(ctx context.Context) {
	if g.cancel != nil {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})
	go g.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (g *GCLoop) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	<-g.done
}

func (g *GCLoop) run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := g.mgr.GC(g.maxAge, g.maxSizeBytes, g.lookup, time.Now())
			if err != nil {
				slog.Error("snapshot: gc failed", "error", err)
				continue
			}
			if len(removed) > 0 {
				slog.Info("snapshot: garbage collected snapshots", "count", len(removed))
			}
		}
	}
}
