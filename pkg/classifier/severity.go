// Package classifier maps raw error events to typed, severity-scored
// classifications (C4) and decides whether an intervention is warranted.
package classifier

import "github.com/codeready-toolchain/cake/pkg/event"

// defaultSeverity is the fixed severity table, overrideable by config
// using a layered defaults-then-override style.
var defaultSeverity = map[event.Kind]event.Severity{
	event.KindImportMissing:  event.SeverityHigh,
	event.KindSyntaxError:    event.SeverityHigh,
	event.KindAttributeError: event.SeverityMedium,
	event.KindTestFailure:    event.SeverityMedium,
	event.KindCoverageDrop:   event.SeverityLow,
	event.KindUnknown:        event.SeverityMedium,
}

// SeverityTable is a mutable, config-overridable copy of the severity
// mapping. The zero value is not usable; construct with NewSeverityTable.
type SeverityTable struct {
	byKind map[event.Kind]event.Severity
}

// NewSeverityTable builds a table starting from the built-in defaults with
// overrides applied on top.
func NewSeverityTable(overrides map[event.Kind]event.Severity) *SeverityTable {
	t := &SeverityTable{byKind: make(map[event.Kind]event.Severity, len(defaultSeverity))}
	for k, v := range defaultSeverity {
		t.byKind[k] = v
	}
	for k, v := range overrides {
		t.byKind[k] = v
	}
	return t
}

// Severity returns the configured severity for kind, defaulting to medium
// for any kind absent from the table (defensive: should not happen for a
// valid Kind).
func (t *SeverityTable) Severity(kind event.Kind) event.Severity {
	if sev, ok := t.byKind[kind]; ok {
		return sev
	}
	return event.SeverityMedium
}
