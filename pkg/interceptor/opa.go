package interceptor

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// input is the document passed to the Rego policy for each command.
type input struct {
	Command string            `json:"command"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

// policyResult is the shape the Rego policy must return from its
// `result` rule.
type policyResult struct {
	Action     string `json:"action"`
	Substitute string `json:"substitute"`
	Reason     string `json:"reason"`
}

// RegoEngine is a PolicyEngine backed by an OPA/Rego policy module,
// CAKE's optional declarative extension point for interceptor rules that
// don't fit the built-in RuleSet's pattern-match shape.
type RegoEngine struct {
	query rego.PreparedEvalQuery
}

// NewRegoEngine prepares policy (Rego source) for repeated evaluation.
// The policy must define `data.cake.interceptor.result` as an object with
// action/substitute/reason fields.
func NewRegoEngine(ctx context.Context, policy string) (*RegoEngine, error) {
	r := rego.New(
		rego.Query("data.cake.interceptor.result"),
		rego.Module("cake_interceptor.rego", policy),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("interceptor: preparing rego policy: %w", err)
	}
	return &RegoEngine{query: pq}, nil
}

// Evaluate implements PolicyEngine.
func (e *RegoEngine) Evaluate(ctx context.Context, cmd, cwd string, env map[string]string) (Decision, error) {
	in := input{Command: cmd, Cwd: cwd, Env: env}
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return Decision{}, fmt.Errorf("interceptor: rego evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, fmt.Errorf("interceptor: rego policy produced no result")
	}

	raw, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("interceptor: rego policy result has unexpected shape")
	}

	pr := policyResult{}
	if v, ok := raw["action"].(string); ok {
		pr.Action = v
	}
	if v, ok := raw["substitute"].(string); ok {
		pr.Substitute = v
	}
	if v, ok := raw["reason"].(string); ok {
		pr.Reason = v
	}

	action, ok := parseAction(pr.Action)
	if !ok {
		return Decision{}, fmt.Errorf("interceptor: rego policy returned unrecognized action %q", pr.Action)
	}

	return Decision{Action: action, Substitute: pr.Substitute, Reason: pr.Reason}, nil
}

func parseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionBlocked, ActionConfirm, ActionSubstitute, ActionAllow:
		return Action(s), true
	}
	return "", false
}

// DefaultPolicy is a minimal, always-allow Rego policy with the result
// shape NewRegoEngine expects. Nothing installs it automatically: when no
// policy file is given, cmd/cake builds the Interceptor with a nil
// PolicyEngine, and the Interceptor itself allows unmatched commands.
const DefaultPolicy = `
package cake.interceptor

result := {"action": "allow", "substitute": "", "reason": "default policy"}
`
