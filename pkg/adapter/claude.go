package adapter

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/cake/pkg/interceptor"
	"github.com/codeready-toolchain/cake/pkg/operator"
)

// ClaudeAdapter integrates CAKE with a Claude-based coding agent by
// injecting the intervention as a user turn via the Messages API,
// confirming delivery through the API response rather than a fire-and-
// forget stdio write. This is the adapter operators choose when the
// supervised agent runtime exposes Claude sessions directly, as opposed
// to a plain stdio-piped CLI process (StdioAdapter).
type ClaudeAdapter struct {
	baseAdapter
	client *anthropic.Client
	model  anthropic.Model
}

// NewClaudeAdapter constructs a ClaudeAdapter using apiKey and model (the
// supervised agent's own model, so the injected turn reads naturally in
// its transcript).
func NewClaudeAdapter(apiKey string, model anthropic.Model) *ClaudeAdapter {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeAdapter{client: &client, model: model}
}

func (a *ClaudeAdapter) Name() string { return "claude" }

// Inject sends iv.Text as a short user-role turn and requires a non-empty
// response to consider delivery confirmed.
func (a *ClaudeAdapter) Inject(ctx context.Context, iv operator.Intervention) error {
	if err := a.runPreExecute(ctx, iv.Text, interceptor.Decision{Action: interceptor.ActionAllow}); err != nil {
		a.runErrorHooks(ctx, iv.Text, err)
		return err
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(iv.Text)),
		},
	})
	if err != nil {
		wrapped := fmt.Errorf("claude adapter: injecting intervention: %w", err)
		a.runErrorHooks(ctx, iv.Text, wrapped)
		return wrapped
	}
	if len(msg.Content) == 0 {
		wrapped := fmt.Errorf("claude adapter: empty response, delivery unconfirmed")
		a.runErrorHooks(ctx, iv.Text, wrapped)
		return wrapped
	}
	a.runPostExecute(ctx, iv.Text)
	return nil
}

// Health issues a minimal request to confirm the API key and network path
// are usable before the controller relies on this adapter.
func (a *ClaudeAdapter) Health(ctx context.Context) error {
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("claude adapter: health check failed: %w", err)
	}
	return nil
}
