package adapter

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/cake/pkg/interceptor"
	"github.com/codeready-toolchain/cake/pkg/operator"
)

// CannedAdapter is the Registry's last resort: it never fails, only logs.
// If every real adapter is unavailable, the intervention is still
// recorded (for the outcome ledger and audit trail) rather than silently
// dropped — the controller always observes a delivery outcome, even a
// degraded one.
type CannedAdapter struct {
	baseAdapter
}

// NewCannedAdapter constructs a CannedAdapter.
func NewCannedAdapter() *CannedAdapter {
	return &CannedAdapter{}
}

func (a *CannedAdapter) Name() string { return "canned" }

func (a *CannedAdapter) Inject(ctx context.Context, iv operator.Intervention) error {
	if err := a.runPreExecute(ctx, iv.Text, interceptor.Decision{Action: interceptor.ActionAllow}); err != nil {
		a.runErrorHooks(ctx, iv.Text, err)
		return err
	}
	slog.Warn("adapter: no live channel available, intervention logged only", "text", iv.Text, "kind", iv.Kind)
	a.runPostExecute(ctx, iv.Text)
	return nil
}

func (a *CannedAdapter) Health(ctx context.Context) error { return nil }
