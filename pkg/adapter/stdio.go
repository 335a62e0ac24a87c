package adapter

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/codeready-toolchain/cake/pkg/interceptor"
	"github.com/codeready-toolchain/cake/pkg/operator"
)

// StdioAdapter is CAKE's default adapter: it writes interventions as a
// tagged line to the supervised agent's stdin, the simplest integration
// that works for any CLI-driven coding agent regardless of provider.
type StdioAdapter struct {
	baseAdapter
	mu sync.Mutex
	w  io.Writer
}

// NewStdioAdapter wraps w (typically the supervised process's stdin
// pipe).
func NewStdioAdapter(w io.Writer) *StdioAdapter {
	return &StdioAdapter{w: w}
}

func (a *StdioAdapter) Name() string { return "stdio" }

// Inject writes iv.Text prefixed with a recognizable operator marker so
// the supervised agent (or a human watching the terminal) can distinguish
// CAKE's interventions from the agent's own output.
func (a *StdioAdapter) Inject(ctx context.Context, iv operator.Intervention) error {
	if err := a.runPreExecute(ctx, iv.Text, interceptor.Decision{Action: interceptor.ActionAllow}); err != nil {
		a.runErrorHooks(ctx, iv.Text, err)
		return err
	}

	a.mu.Lock()
	_, err := fmt.Fprintf(a.w, "[cake-operator] %s\n", iv.Text)
	a.mu.Unlock()
	if err != nil {
		wrapped := fmt.Errorf("stdio adapter: write failed: %w", err)
		a.runErrorHooks(ctx, iv.Text, wrapped)
		return wrapped
	}
	a.runPostExecute(ctx, iv.Text)
	return nil
}

// Health always succeeds for StdioAdapter: a broken pipe surfaces at
// write time via Inject's error return, there is no separate channel to
// probe in advance.
func (a *StdioAdapter) Health(ctx context.Context) error {
	return nil
}

// Execute runs cmd via run only if every registered pre-execute hook
// allows it given decision — the Command Interceptor's (C6) verdict for
// cmd — reporting the outcome through the post-execute or error hooks.
// This is the per-command veto surface the package-level launch-time
// check in cmd/cake used to hard-code: registering a PreExecuteHook that
// inspects decision.Action lets any adapter-layer policy veto execution
// without the caller needing to know about interceptor decisions at all.
func (a *StdioAdapter) Execute(ctx context.Context, cmd string, decision interceptor.Decision, run func() error) error {
	if err := a.runPreExecute(ctx, cmd, decision); err != nil {
		a.runErrorHooks(ctx, cmd, err)
		return err
	}
	if err := run(); err != nil {
		a.runErrorHooks(ctx, cmd, err)
		return err
	}
	a.runPostExecute(ctx, cmd)
	return nil
}
