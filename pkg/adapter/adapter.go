// Package adapter implements the Adapter Interface (C10): the pluggable
// boundary between a rendered Intervention and the specific supervised
// agent runtime it must reach (a raw stdio-driven CLI agent, a
// Claude-based agent via the Messages API, or others operators wire in).
package adapter

import (
	"context"

	"github.com/codeready-toolchain/cake/pkg/interceptor"
	"github.com/codeready-toolchain/cake/pkg/operator"
)

// PreExecuteHook runs before cmd executes, after the Command Interceptor
// (C6) has rendered decision for it. Returning a non-nil error vetoes
// execution — the adapter surfaces that error to its caller instead of
// running cmd.
type PreExecuteHook func(ctx context.Context, cmd string, decision interceptor.Decision) error

// PostExecuteHook runs after cmd has executed (or an intervention has
// been delivered) successfully.
type PostExecuteHook func(ctx context.Context, cmd string)

// ErrorHook runs when executing cmd, or delivering an intervention,
// failed.
type ErrorHook func(ctx context.Context, cmd string, err error)

// Adapter is the boundary every supervised-agent integration implements:
// inject a rendered intervention, register lifecycle hooks, and report
// health.
type Adapter interface {
	// Name identifies the adapter for logging and registry ordering.
	Name() string

	// Inject delivers iv to the supervised agent. It returns an error if
	// delivery could not be confirmed; the Registry tries the next
	// adapter in that case.
	Inject(ctx context.Context, iv operator.Intervention) error

	// RegisterPreExecute adds a hook that can veto execution before it
	// happens. Adapters with nothing to execute beyond delivering text
	// (e.g. CannedAdapter) still run these hooks around Inject, keyed on
	// the intervention text as the "command" descriptor.
	RegisterPreExecute(hook PreExecuteHook)

	// RegisterPostExecute adds a hook invoked after a successful
	// execution or delivery.
	RegisterPostExecute(hook PostExecuteHook)

	// RegisterError adds a hook invoked when execution or delivery fails.
	RegisterError(hook ErrorHook)

	// Health reports whether the adapter's underlying channel is usable.
	Health(ctx context.Context) error
}

// baseAdapter factors the hook bookkeeping shared by every Adapter
// implementation.
type baseAdapter struct {
	preExecute  []PreExecuteHook
	postExecute []PostExecuteHook
	onError     []ErrorHook
}

func (b *baseAdapter) RegisterPreExecute(hook PreExecuteHook)   { b.preExecute = append(b.preExecute, hook) }
func (b *baseAdapter) RegisterPostExecute(hook PostExecuteHook) { b.postExecute = append(b.postExecute, hook) }
func (b *baseAdapter) RegisterError(hook ErrorHook)             { b.onError = append(b.onError, hook) }

// runPreExecute runs every registered pre-execute hook in registration
// order, stopping at (and returning) the first veto.
func (b *baseAdapter) runPreExecute(ctx context.Context, cmd string, decision interceptor.Decision) error {
	for _, h := range b.preExecute {
		if err := h(ctx, cmd, decision); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseAdapter) runPostExecute(ctx context.Context, cmd string) {
	for _, h := range b.postExecute {
		h(ctx, cmd)
	}
}

func (b *baseAdapter) runErrorHooks(ctx context.Context, cmd string, err error) {
	for _, h := range b.onError {
		h(ctx, cmd, err)
	}
}
