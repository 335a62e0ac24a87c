package classifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// Classifier implements C4: it maps an event.Event to an event.Classification
// and decides whether the controller should intervene.
type Classifier struct {
	severity        *SeverityTable
	cooldown        time.Duration
	confidenceFloor float64 // minimum confidence for HIGH severity to intervene (spec: 0.8)
}

// Config bundles the classifier's tunables, sourced from the active config
// snapshot's strictness preset.
type Config struct {
	Severity        *SeverityTable
	CooldownMinutes int
	ConfidenceFloor float64
}

// New constructs a Classifier from cfg, applying library defaults for any
// zero-value tunables.
func New(cfg Config) *Classifier {
	sev := cfg.Severity
	if sev == nil {
		sev = NewSeverityTable(nil)
	}
	floor := cfg.ConfidenceFloor
	if floor == 0 {
		floor = 0.8
	}
	cooldown := cfg.CooldownMinutes
	if cooldown == 0 {
		cooldown = 15
	}
	return &Classifier{
		severity:        sev,
		cooldown:        time.Duration(cooldown) * time.Minute,
		confidenceFloor: floor,
	}
}

// Classify maps a raw event to a typed Classification. Classification
// itself never fails outright: a classification failure falls back to
// MEDIUM severity and continues, so a malformed event still yields a
// usable Classification.
func (c *Classifier) Classify(e event.Event) event.Classification {
	kind := e.Kind
	if !kind.IsValid() {
		kind = event.KindUnknown
	}

	sev := c.severity.Severity(kind)
	confidence := confidenceFor(kind, e.Raw)
	remediation := remediationFor(kind, e.Raw)

	return event.Classification{
		Kind:                 kind,
		Severity:             sev,
		Confidence:           confidence,
		InterventionRequired: false, // decided by ShouldIntervene, which has recall context
		Remediation:          remediation,
	}
}

// confidenceFor is a simple heuristic: kinds with a highly specific,
// unambiguous raw-text shape (import errors, syntax errors) get high
// confidence; broader categories get a more conservative estimate.
func confidenceFor(kind event.Kind, raw string) float64 {
	switch kind {
	case event.KindImportMissing:
		if strings.Contains(raw, "No module named") || strings.Contains(raw, "cannot find package") {
			return 0.95
		}
		return 0.85
	case event.KindSyntaxError:
		return 0.9
	case event.KindAttributeError:
		return 0.85
	case event.KindTestFailure:
		return 0.88
	case event.KindCoverageDrop:
		return 0.75
	default:
		return 0.5
	}
}

// remediationFor produces a ≤120-char remediation summary per the data
// model's cap, or empty when no specific suggestion applies.
func remediationFor(kind event.Kind, raw string) string {
	var s string
	switch kind {
	case event.KindImportMissing:
		s = fmt.Sprintf("Install the missing dependency referenced in: %s", truncate(raw, 60))
	case event.KindSyntaxError:
		s = "Fix the syntax error before re-running."
	case event.KindAttributeError:
		s = "Check the attribute/method name against the object's actual type."
	case event.KindTestFailure:
		s = "Inspect the failing test's assertion and recent changes to it."
	case event.KindCoverageDrop:
		s = "Add or restore tests covering the newly uncovered lines."
	default:
		return ""
	}
	return truncate(s, event.MaxRemediationLen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Cooldown returns the configured minimum interval between interventions
// for the same signature: the window within which ShouldIntervene
// suppresses a non-critical repeat.
func (c *Classifier) Cooldown() time.Duration { return c.cooldown }

// ShouldIntervene returns true when severity is critical; when severity is
// high and confidence >= confidenceFloor; when severity is medium and
// recallCount >= 3; never for low. Cooldown
// suppresses repeats unless severity is critical.
func (c *Classifier) ShouldIntervene(cl event.Classification, recallCount int, lastInterventionAt time.Time, now time.Time) bool {
	var required bool
	switch cl.Severity {
	case event.SeverityCritical:
		required = true
	case event.SeverityHigh:
		required = cl.Confidence >= c.confidenceFloor
	case event.SeverityMedium:
		required = recallCount >= 3
	default:
		required = false
	}
	if !required {
		return false
	}
	if cl.Severity == event.SeverityCritical {
		return true
	}
	if lastInterventionAt.IsZero() {
		return true
	}
	return now.Sub(lastInterventionAt) >= c.cooldown
}
