package recall

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DegradingStore wraps a durable Store and transparently falls back to an
// in-memory Store when the durable backend fails: a write failure retries
// with bounded exponential backoff up to 3 attempts, and on final failure
// switches to in-memory mode and continues. On successful reconnect,
// pending in-memory writes are flushed back to the durable store in the
// order they were recorded.
type DegradingStore struct {
	durable Store
	path    string
	opener  func(ctx context.Context, path string) (Store, error)

	mu        sync.RWMutex
	fallback  *memoryStore
	degraded  atomic.Bool
	onDegrade func(err error) // optional hook, used for observability counters
}

// NewDegradingStore wraps an already-open durable store.
func NewDegradingStore(durable Store, path string, opener func(ctx context.Context, path string) (Store, error)) *DegradingStore {
	return &DegradingStore{
		durable: durable,
		path:    path,
		opener:  opener,
	}
}

// OnDegrade registers a callback invoked whenever the store transitions
// into degraded mode, e.g. to feed an observability counter.
func (d *DegradingStore) OnDegrade(fn func(err error)) { d.onDegrade = fn }

func (d *DegradingStore) isDegraded() bool { return d.degraded.Load() }

func (d *DegradingStore) Degraded() bool { return d.isDegraded() }

func (d *DegradingStore) degrade(err error) *memoryStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fallback == nil {
		d.fallback = newMemoryStore()
	}
	if d.degraded.CompareAndSwap(false, true) {
		slog.Error("recall store degraded to in-memory mode", "error", err)
		if d.onDegrade != nil {
			d.onDegrade(err)
		}
	}
	return d.fallback
}

// tryReconnect attempts to reopen the durable backend and, on success,
// flushes pending in-memory records into it before clearing degraded mode.
func (d *DegradingStore) tryReconnect(ctx context.Context) {
	if !d.isDegraded() || d.opener == nil {
		return
	}
	fresh, err := d.opener(ctx, d.path)
	if err != nil {
		return
	}

	d.mu.Lock()
	pending := d.fallback
	d.durable = fresh
	d.fallback = nil
	d.mu.Unlock()

	if pending != nil {
		recs := pending.snapshotAll()
		sort.Slice(recs, func(i, j int) bool { return recs[i].FirstSeen.Before(recs[j].FirstSeen) })
		for _, rec := range recs {
			for i := 0; i < rec.OccurrenceCount; i++ {
				_ = fresh.Record(ctx, rec.Signature, Fields{Kind: rec.Kind, Remainder: rec.Remainder, Now: rec.LastSeen})
			}
			for i := 0; i < rec.InterventionCount; i++ {
				_ = fresh.MarkIntervention(ctx, rec.Signature, rec.LastIntervention, rec.LastInterventionAt)
			}
			for i := 0; i < rec.SuccessCount; i++ {
				_ = fresh.MarkOutcome(ctx, rec.Signature, true)
			}
		}
	}
	d.degraded.Store(false)
	slog.Info("recall store reconnected, pending writes flushed")
}

func withRetry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(op, b)
}

func (d *DegradingStore) Record(ctx context.Context, sig Signature, fields Fields) error {
	d.tryReconnect(ctx)

	d.mu.RLock()
	durable := d.durable
	degraded := d.isDegraded()
	d.mu.RUnlock()

	if !degraded {
		err := withRetry(ctx, func() error { return durable.Record(ctx, sig, fields) })
		if err == nil {
			return nil
		}
		d.degrade(err)
	}
	return d.degrade(nil).Record(ctx, sig, fields)
}

func (d *DegradingStore) Lookup(ctx context.Context, sig Signature) (Record, bool, error) {
	d.mu.RLock()
	durable, degraded := d.durable, d.isDegraded()
	d.mu.RUnlock()
	if degraded {
		return d.degrade(nil).Lookup(ctx, sig)
	}
	rec, ok, err := durable.Lookup(ctx, sig)
	if err != nil {
		d.degrade(err)
		return d.degrade(nil).Lookup(ctx, sig)
	}
	return rec, ok, nil
}

func (d *DegradingStore) Similar(ctx context.Context, tokens []string, threshold float64) ([]Record, error) {
	d.mu.RLock()
	durable, degraded := d.durable, d.isDegraded()
	d.mu.RUnlock()
	if degraded {
		return d.degrade(nil).Similar(ctx, tokens, threshold)
	}
	recs, err := durable.Similar(ctx, tokens, threshold)
	if err != nil {
		d.degrade(err)
		return d.degrade(nil).Similar(ctx, tokens, threshold)
	}
	return recs, nil
}

func (d *DegradingStore) MarkIntervention(ctx context.Context, sig Signature, text string, now time.Time) error {
	d.mu.RLock()
	durable, degraded := d.durable, d.isDegraded()
	d.mu.RUnlock()
	if !degraded {
		if err := withRetry(ctx, func() error { return durable.MarkIntervention(ctx, sig, text, now) }); err == nil {
			return nil
		} else {
			d.degrade(err)
		}
	}
	return d.degrade(nil).MarkIntervention(ctx, sig, text, now)
}

func (d *DegradingStore) MarkOutcome(ctx context.Context, sig Signature, success bool) error {
	d.mu.RLock()
	durable, degraded := d.durable, d.isDegraded()
	d.mu.RUnlock()
	if !degraded {
		if err := withRetry(ctx, func() error { return durable.MarkOutcome(ctx, sig, success) }); err == nil {
			return nil
		} else {
			d.degrade(err)
		}
	}
	return d.degrade(nil).MarkOutcome(ctx, sig, success)
}

func (d *DegradingStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	d.mu.RLock()
	durable, degraded := d.durable, d.isDegraded()
	d.mu.RUnlock()
	if degraded {
		return d.degrade(nil).PurgeExpired(ctx, now)
	}
	return durable.PurgeExpired(ctx, now)
}

func (d *DegradingStore) Close() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.durable != nil {
		return d.durable.Close()
	}
	return nil
}
