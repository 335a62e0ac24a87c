package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/cake/pkg/operator"
)

// Registry tries each registered Adapter in priority order, falling
// through to the next on failure — the controller never blocks waiting
// for a single adapter to recover. The ESCALATING state transition
// covers the case where even the fallback adapter's delivery can't be
// confirmed.
type Registry struct {
	adapters []Adapter
}

// NewRegistry constructs a Registry trying adapters in the given order.
// CannedAdapter should normally be last, since it never fails and would
// otherwise shadow every adapter after it.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Inject tries each adapter in order, returning the first success. If
// every adapter fails, it returns a combined error.
func (r *Registry) Inject(ctx context.Context, iv operator.Intervention) error {
	var errs []error
	for _, a := range r.adapters {
		if err := a.Inject(ctx, iv); err != nil {
			slog.Warn("adapter: inject failed, trying next", "adapter", a.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("adapter: registry has no adapters configured")
	}
	return errors.Join(errs...)
}

// Health reports the health of every registered adapter by name.
func (r *Registry) Health(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.adapters))
	for _, a := range r.adapters {
		out[a.Name()] = a.Health(ctx)
	}
	return out
}
