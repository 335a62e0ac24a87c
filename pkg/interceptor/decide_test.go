package interceptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSet_BlockedTakesPriorityOverAllow(t *testing.T) {
	rs, errs := CompileRules(DefaultRules())
	require.Empty(t, errs)

	rule, matched := rs.Match("rm -rf /")
	require.True(t, matched)
	assert.Equal(t, ActionBlocked, rule.Action)
}

func TestRuleSet_NoMatchFallsThrough(t *testing.T) {
	rs, errs := CompileRules(DefaultRules())
	require.Empty(t, errs)

	_, matched := rs.Match("ls -la")
	assert.False(t, matched)
}

func TestDecide_AllowsUnmatchedCommandWithoutPolicy(t *testing.T) {
	rs, _ := CompileRules(DefaultRules())
	var buf bytes.Buffer
	ic := New(rs, nil, NewAuditor(&buf), 0)

	d := ic.Decide(context.Background(), "ls -la", "/tmp", nil)
	assert.Equal(t, ActionAllow, d.Action)

	var entry AuditEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, ActionAllow, entry.Action)
}

func TestDecide_BlocksRuleMatch(t *testing.T) {
	rs, _ := CompileRules(DefaultRules())
	var buf bytes.Buffer
	ic := New(rs, nil, NewAuditor(&buf), 0)

	d := ic.Decide(context.Background(), "rm -rf /", "/", nil)
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Equal(t, "ruleset", d.Source)
}

func TestDecide_ForcePushBlockedWithLeasedAlternative(t *testing.T) {
	rs, _ := CompileRules(DefaultRules())
	var buf bytes.Buffer
	ic := New(rs, nil, NewAuditor(&buf), 0)

	d := ic.Decide(context.Background(), "git push --force", "/repo", nil)
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Contains(t, d.Reason, "force push")
	assert.Equal(t, "git push --force-with-lease", d.Substitute)

	var entry AuditEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "git push --force", entry.Command)
}

type failingPolicy struct{}

func (failingPolicy) Evaluate(_ context.Context, _, _ string, _ map[string]string) (Decision, error) {
	return Decision{}, errors.New("policy unavailable")
}

func TestDecide_FailsClosedWhenPolicyErrors(t *testing.T) {
	rs, _ := CompileRules(DefaultRules())
	var buf bytes.Buffer
	ic := New(rs, failingPolicy{}, NewAuditor(&buf), 0)

	d := ic.Decide(context.Background(), "some-unmatched-command", "/tmp", nil)
	assert.Equal(t, ActionBlocked, d.Action)
	assert.Equal(t, "fail-closed", d.Source)
}

type allowingPolicy struct{}

func (allowingPolicy) Evaluate(_ context.Context, _, _ string, _ map[string]string) (Decision, error) {
	return Decision{Action: ActionAllow, Reason: "policy allowed"}, nil
}

func TestDecide_UsesPolicyWhenRuleSetHasNoMatch(t *testing.T) {
	rs, _ := CompileRules(DefaultRules())
	var buf bytes.Buffer
	ic := New(rs, allowingPolicy{}, NewAuditor(&buf), 0)

	d := ic.Decide(context.Background(), "some-unmatched-command", "/tmp", nil)
	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, "policy", d.Source)
}
