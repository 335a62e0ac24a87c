package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/cake/pkg/adapter"
	"github.com/codeready-toolchain/cake/pkg/classifier"
	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/metrics"
	"github.com/codeready-toolchain/cake/pkg/operator"
	"github.com/codeready-toolchain/cake/pkg/recall"
	"github.com/codeready-toolchain/cake/pkg/snapshot"
	"github.com/codeready-toolchain/cake/pkg/watchdog"
)

// StateTimeout bounds the context for the store, snapshot and adapter
// calls made while processing one event. An adapter delivery that fails
// because the deadline passed leads to ESCALATING like any other delivery
// failure; store calls that time out are logged and processing continues.
// The timeout itself forces no state transition.
const StateTimeout = 30 * time.Second

// FollowUpWindow is how long the Controller waits after an intervention
// before treating the signature's continued silence as a success: the
// success count increments from a passive absence of recurrence within
// this window rather than an explicit positive signal from the adapter.
const FollowUpWindow = 10 * time.Minute

// Escalator is notified when the Controller can't resolve a signature on
// its own — typically wired to the Slack-based operator notification.
type Escalator interface {
	Escalate(ctx context.Context, cl event.Classification, rec recall.Record) error
}

// Snapshotter is the narrow surface of snapshot.Manager the Controller
// depends on, letting it run with snapshotting disabled (nil) when no
// repository is configured.
type Snapshotter interface {
	Create(label, signature string) (snapshot.Snapshot, error)
}

// Controller runs the detect → classify → recall → intervene →
// recover/escalate loop over events the watchdog (C5) publishes.
type Controller struct {
	queue      *watchdog.BoundedQueue
	classifier *classifier.Classifier
	store      recall.Store
	builder    *operator.Builder
	adapters   *adapter.Registry
	snapshots  Snapshotter
	escalator  Escalator

	stateMu sync.Mutex
	state   State

	runCtx context.Context
	wg     sync.WaitGroup
}

// New constructs a Controller. snapshots and escalator may be nil to run
// with those features disabled.
func New(
	queue *watchdog.BoundedQueue,
	clsfr *classifier.Classifier,
	store recall.Store,
	builder *operator.Builder,
	adapters *adapter.Registry,
	snapshots Snapshotter,
	escalator Escalator,
) *Controller {
	return &Controller{
		queue:      queue,
		classifier: clsfr,
		store:      store,
		builder:    builder,
		adapters:   adapters,
		snapshots:  snapshots,
		escalator:  escalator,
		state:      StateMonitoring,
	}
}

// State returns the Controller's current state.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) setState(to State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if !canTransition(c.state, to) {
		slog.Error("controller: illegal state transition, forcing ESCALATING", "from", c.state, "to", to)
		c.state = StateEscalating
		return
	}
	c.state = to
}

// Run drains the watchdog queue until ctx is cancelled or done fires,
// processing one event per iteration. It never returns an error: recall
// store failures are logged and processing continues, and a failed
// intervention delivery transitions to ESCALATING before the loop moves
// on — the supervisor must never crash.
func (c *Controller) Run(ctx context.Context, done <-chan struct{}) {
	c.runCtx = ctx
	for {
		evt, ok := c.queue.Pop(done)
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.process(ctx, evt)
	}
}

func (c *Controller) process(ctx context.Context, evt event.Event) {
	c.setState(StateDetecting)

	stepCtx, cancel := context.WithTimeout(ctx, StateTimeout)
	defer cancel()

	sig := recall.Sign(evt)
	now := time.Now().UTC()
	remainder := recall.NormalizeRemainder(evt.Raw)

	if err := c.store.Record(stepCtx, sig, recall.Fields{Kind: string(evt.Kind), Remainder: remainder, Now: now}); err != nil {
		slog.Error("controller: recall record failed, continuing degraded", "error", err)
	}

	rec, found, err := c.store.Lookup(stepCtx, sig)
	if err != nil {
		slog.Error("controller: recall lookup failed, treating as first occurrence", "error", err)
	}
	if !found {
		rec = c.siblingRecord(stepCtx, evt)
	}

	cl := c.classifier.Classify(evt)

	if !c.classifier.ShouldIntervene(cl, rec.OccurrenceCount, rec.LastInterventionAt, now) {
		c.setState(StateMonitoring)
		return
	}

	c.setState(StateIntervening)
	if err := c.intervene(stepCtx, sig, evt, cl, rec, now); err != nil {
		slog.Error("controller: intervention failed, escalating", "error", err)
		c.escalate(ctx, cl, rec)
		return
	}
	metrics.ResponseLatencySeconds.Observe(time.Since(evt.Timestamp).Seconds())

	c.setState(StateRecovering)
	c.setState(StateMonitoring)
}

// siblingRecord looks for a prior record whose normalized remainder
// overlaps evt's closely enough to be treated as the same underlying
// problem recurring under a signature that hashed differently (e.g. a
// different file path for the same missing import). Used only when no
// exact signature match exists; its history informs the intervene
// decision but the new exact signature is still the one recorded.
func (c *Controller) siblingRecord(ctx context.Context, evt event.Event) recall.Record {
	siblings, err := c.store.Similar(ctx, recall.NormalizedTokens(evt.Raw), recall.SiblingMatchThreshold)
	if err != nil {
		slog.Warn("controller: sibling recall lookup failed, treating as first occurrence", "error", err)
		return recall.Record{}
	}
	if len(siblings) == 0 {
		return recall.Record{}
	}
	return siblings[0]
}

func (c *Controller) intervene(ctx context.Context, sig recall.Signature, evt event.Event, cl event.Classification, rec recall.Record, now time.Time) error {
	if c.snapshots != nil {
		label := fmt.Sprintf("pre-intervention-%s", cl.Kind)
		if _, err := c.snapshots.Create(label, sig.String()); err != nil {
			slog.Warn("controller: snapshot creation failed, continuing without one", "error", err)
		}
	}

	strike := operator.StrikeFromOccurrences(rec.OccurrenceCount)
	iv := c.builder.Build(operator.InterventionContext{
		Kind:        cl.Kind,
		Severity:    cl.Severity,
		Path:        evt.Path,
		Line:        evt.Line,
		Remediation: cl.Remediation,
		Strike:      strike,
		RecallCount: rec.OccurrenceCount,
	})
	iv.RenderedAt = now

	if err := c.adapters.Inject(ctx, iv); err != nil {
		return err
	}

	if err := c.store.MarkIntervention(ctx, sig, iv.Text, now); err != nil {
		slog.Error("controller: failed to record intervention", "error", err)
	}
	metrics.InterventionsTotal.WithLabelValues(string(cl.Kind), cl.Severity.String()).Inc()
	c.scheduleOutcomeCheck(sig, rec.OccurrenceCount)
	return nil
}

// scheduleOutcomeCheck waits FollowUpWindow then marks the intervention a
// success if sig's occurrence count hasn't grown since, i.e. the error
// didn't recur. It exits early if the Controller's run context is
// cancelled first.
func (c *Controller) scheduleOutcomeCheck(sig recall.Signature, occurrenceAtIntervention int) {
	runCtx := c.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		timer := time.NewTimer(FollowUpWindow)
		defer timer.Stop()
		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
		}

		checkCtx, cancel := context.WithTimeout(context.Background(), StateTimeout)
		defer cancel()
		rec, ok, err := c.store.Lookup(checkCtx, sig)
		if err != nil || !ok {
			return
		}
		if rec.OccurrenceCount > occurrenceAtIntervention {
			return // recurred within the window: not a success
		}
		if err := c.store.MarkOutcome(checkCtx, sig, true); err != nil {
			slog.Warn("controller: failed to mark outcome", "error", err)
			return
		}
		metrics.ErrorsPreventedTotal.Inc()
	}()
}

// Wait blocks until every in-flight outcome check goroutine has finished.
// Intended for tests; production callers rely on runCtx cancellation to
// bound how long these linger after shutdown.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) escalate(ctx context.Context, cl event.Classification, rec recall.Record) {
	c.setState(StateEscalating)
	if c.escalator != nil {
		if err := c.escalator.Escalate(ctx, cl, rec); err != nil {
			slog.Error("controller: escalation notification failed", "error", err)
		}
	}
	c.setState(StateMonitoring)
}
