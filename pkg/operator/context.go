// Package operator implements the Template Engine (C3): deterministic
// rendering of operator interventions from a fixed set of templates, gated
// through the Voice Gate before being handed to an adapter.
package operator

import (
	"time"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// InterventionContext carries the whitelisted fields a template may draw
// substitutions from. Nothing outside this struct is ever interpolated
// into a rendered message — arbitrary formatting is never permitted.
type InterventionContext struct {
	Kind        event.Kind
	Severity    event.Severity
	Path        string
	Line        int
	Remediation string
	Strike      int // escalation strike level for this signature, 1-based
	RecallCount int
}

// Intervention is the fully rendered, voice-gate-approved message ready
// for an adapter to inject, plus the bookkeeping the controller needs to
// record the outcome.
type Intervention struct {
	Text        string
	Kind        event.Kind
	Severity    event.Severity
	Strike      int
	RenderedAt  time.Time
	GateScore   float64
	TemplateKey string
}
