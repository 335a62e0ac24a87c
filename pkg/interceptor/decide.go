package interceptor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/codeready-toolchain/cake/pkg/metrics"
)

// DecisionBudget is the default p99 latency budget for Decide, used when
// New is given a zero budget. A command decision that cannot complete
// within the budget fails closed rather than blocking the supervised
// agent indefinitely.
const DecisionBudget = 50 * time.Millisecond

// Decision is the interceptor's verdict for one command.
type Decision struct {
	Action     Action
	Substitute string // the matched rule's alternative command: set for ActionSubstitute and for blocked rules that offer one
	Reason     string
	Source     string // "ruleset", "policy", or "fail-closed"
}

// PolicyEngine is the optional declarative extension point: an OPA/Rego
// (or equivalent) engine that can render a verdict when the built-in
// RuleSet has nothing to say about a command. It is guarded by a circuit
// breaker so a misbehaving policy bundle degrades to fail-closed rather
// than stalling every command.
type PolicyEngine interface {
	Evaluate(ctx context.Context, cmd, cwd string, env map[string]string) (Decision, error)
}

// Interceptor is the Command Interceptor (C6). It evaluates the built-in
// RuleSet first; only commands the RuleSet doesn't match are offered to
// the optional PolicyEngine.
type Interceptor struct {
	rules   *RuleSet
	policy  PolicyEngine
	breaker *gobreaker.CircuitBreaker
	auditor *Auditor
	budget  time.Duration
}

// New constructs an Interceptor with decision budget budget. policy may
// be nil, in which case every command the RuleSet doesn't match is
// allowed. A zero budget falls back to DecisionBudget.
func New(rules *RuleSet, policy PolicyEngine, auditor *Auditor, budget time.Duration) *Interceptor {
	if budget <= 0 {
		budget = DecisionBudget
	}
	ic := &Interceptor{rules: rules, policy: policy, auditor: auditor, budget: budget}
	if policy != nil {
		ic.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "interceptor-policy",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return ic
}

// Decide renders a verdict for cmd within ic.budget. Any failure —
// timeout, policy engine error, or an open circuit breaker — fails closed
// to ActionBlocked rather than risking a silent allow.
func (ic *Interceptor) Decide(ctx context.Context, cmd, cwd string, env map[string]string) Decision {
	ctx, cancel := context.WithTimeout(ctx, ic.budget)
	defer cancel()

	decision := ic.decide(ctx, cmd, cwd, env)
	metrics.InterceptorDecisionsTotal.WithLabelValues(string(decision.Action), decision.Source).Inc()
	if ic.auditor != nil {
		ic.auditor.Record(cmd, decision)
	}
	return decision
}

func (ic *Interceptor) decide(ctx context.Context, cmd, cwd string, env map[string]string) Decision {
	if rule, matched := ic.rules.Match(cmd); matched {
		return Decision{
			Action:     rule.Action,
			Substitute: rule.Substitute,
			Reason:     rule.Reason,
			Source:     "ruleset",
		}
	}

	if ic.policy == nil {
		return Decision{Action: ActionAllow, Reason: "no matching rule", Source: "ruleset"}
	}

	result, err := ic.breaker.Execute(func() (any, error) {
		return ic.evaluatePolicy(ctx, cmd, cwd, env)
	})
	if err != nil {
		slog.Warn("interceptor: policy evaluation failed, failing closed", "command", cmd, "error", err)
		return Decision{Action: ActionBlocked, Reason: "policy evaluation unavailable", Source: "fail-closed"}
	}
	return result.(Decision)
}

func (ic *Interceptor) evaluatePolicy(ctx context.Context, cmd, cwd string, env map[string]string) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	default:
	}
	d, err := ic.policy.Evaluate(ctx, cmd, cwd, env)
	if err != nil {
		return Decision{}, err
	}
	d.Source = "policy"
	return d, nil
}
