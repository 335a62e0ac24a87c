package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/recall"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service delivers escalation notifications to a Slack channel, threading
// repeat escalations for the same signature under one message rather than
// flooding the channel with duplicates. It implements
// controller.Escalator.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a new Slack notification service. Returns nil if
// Token or Channel is empty, so wiring an unconfigured Service into the
// Controller is a safe no-op rather than a startup failure.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client: NewClient(cfg.Token, cfg.Channel),
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{client: client, logger: slog.Default().With("component", "slack-service")}
}

// Escalate posts (or threads, if a prior escalation for sig is still
// findable) a notification carrying enough context for a human to resume
// the investigation. Fails open: a delivery failure is logged, never
// returned, so a Slack outage cannot block the Controller's MONITORING
// recovery.
func (s *Service) Escalate(ctx context.Context, cl event.Classification, rec recall.Record) error {
	if s == nil {
		return nil
	}

	fingerprint := fmt.Sprintf("cake-signature:%s", rec.Signature.String())
	threadTS, err := s.client.FindMessageByFingerprint(ctx, fingerprint)
	if err != nil {
		s.logger.Warn("failed to find existing escalation thread", "signature", rec.Signature, "error", err)
	}

	blocks := BuildEscalationMessage(rec.Signature, cl, rec)

	if err := s.client.PostMessage(ctx, blocks, threadTS, fingerprint, 10*time.Second); err != nil {
		s.logger.Error("failed to send escalation notification", "signature", rec.Signature, "error", err)
	}
	return nil
}
