package operator

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/cake/pkg/voice"
)

const (
	maxClauseLen = 80
	maxTotalLen  = 220
)

// cannedFallback is the last-resort message used when every templated
// attempt fails the Voice Gate. It is itself gate-approved by
// construction (fixed prefix, approved verbs, no forbidden substrings) so
// Build always returns something injectable: on final failure, a safe
// canned message goes out instead of nothing.
const cannedFallback = voice.Prefix + "Stop. Check the most recent error before continuing."

// Builder renders InterventionContext values into gate-approved
// Intervention messages. Rendering is deterministic: the same context
// always produces byte-identical output (testable property P7).
type Builder struct {
	gate *voice.Gate
}

// NewBuilder constructs a Builder using gate for validation.
func NewBuilder(gate *voice.Gate) *Builder {
	return &Builder{gate: gate}
}

// Build renders, gates, and — on rejection — retries with progressively
// simpler templates (lower strike rungs) up to three attempts before
// falling back to the canned message. The returned Intervention is always
// gate-approved.
func (b *Builder) Build(ctx InterventionContext) Intervention {
	attempts := []int{ctx.Strike, 1, 0}
	seen := map[int]bool{}

	for _, strike := range attempts {
		if seen[strike] {
			continue
		}
		seen[strike] = true

		attemptCtx := ctx
		attemptCtx.Strike = strike
		msg, key := b.render(attemptCtx)

		result := b.gate.Validate(msg)
		if result.Approved {
			return Intervention{
				Text:        msg,
				Kind:        ctx.Kind,
				Severity:    ctx.Severity,
				Strike:      ctx.Strike,
				RenderedAt:  time.Time{}, // stamped by the caller; Build stays deterministic
				GateScore:   result.Similarity,
				TemplateKey: key,
			}
		}
	}

	result := b.gate.Validate(cannedFallback)
	return Intervention{
		Text:        cannedFallback,
		Kind:        ctx.Kind,
		Severity:    ctx.Severity,
		Strike:      ctx.Strike,
		GateScore:   result.Similarity,
		TemplateKey: "canned-fallback",
	}
}

// render composes the fixed voice prefix with the kind/strike template's
// clause, clamping both the clause and total message to their length
// limits.
func (b *Builder) render(ctx InterventionContext) (string, string) {
	clause := lookupTemplate(ctx.Kind, ctx.Strike)(ctx)
	clause = clampLen(clause, maxClauseLen)

	msg := voice.Prefix + clause
	msg = clampLen(msg, maxTotalLen)

	key := fmt.Sprintf("%s/%d", ctx.Kind, ctx.Strike)
	return msg, key
}

func clampLen(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
