package operator

import (
	"fmt"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// template renders a clause (no prefix) from ctx using only whitelisted
// fields. Returning a format function per (kind, strike) keeps rendering
// declarative: no general templating language, just a table of fixed
// shapes.
type template func(ctx InterventionContext) string

// templateTable maps a Kind to its per-strike template ladder. Strike 1 is
// the gentlest phrasing and each higher rung is firmer; a strike above a
// kind's highest defined rung reuses that rung (see lookupTemplate).
// Every clause below is one or more sentences, each beginning with a verb
// from voice.DefaultConfig().ApprovedVerbs (Run, Check, Fix, Try, See,
// Stop) — the Voice Gate requires this of every imperative clause, not
// just the first.
var templateTable = map[event.Kind]map[int]template{
	event.KindImportMissing: {
		1: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Check the missing import in %s.", basename(c.Path))
		},
		2: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Run the installer for the package missing from %s.", basename(c.Path))
		},
		3: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Fix the unresolved import in %s now.", basename(c.Path))
		},
		4: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Fix the unresolved import in %s; it has recurred %d times.", basename(c.Path), c.RecallCount)
		},
	},
	event.KindSyntaxError: {
		1: func(c InterventionContext) string {
			return syntaxClause("Check", c)
		},
		2: func(c InterventionContext) string {
			return syntaxClause("Fix", c)
		},
		3: func(c InterventionContext) string {
			return "Stop. " + syntaxClause("Fix", c)
		},
	},
	event.KindAttributeError: {
		1: func(c InterventionContext) string {
			return fmt.Sprintf("See whether the attribute used in %s exists on that type.", basename(c.Path))
		},
		2: func(c InterventionContext) string {
			return fmt.Sprintf("Check the object type in %s before reusing that attribute.", basename(c.Path))
		},
		3: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Fix the attribute mismatch in %s.", basename(c.Path))
		},
	},
	event.KindTestFailure: {
		1: func(c InterventionContext) string {
			return fmt.Sprintf("Check the failing test in %s.", basename(c.Path))
		},
		2: func(c InterventionContext) string {
			return fmt.Sprintf("Try rerunning the test in %s after reviewing the assertion.", basename(c.Path))
		},
		3: func(c InterventionContext) string {
			return fmt.Sprintf("Stop. Fix the failing test in %s.", basename(c.Path))
		},
	},
	event.KindCoverageDrop: {
		1: func(c InterventionContext) string {
			return "Check coverage before merging further changes."
		},
	},
}

func syntaxClause(verb string, c InterventionContext) string {
	if c.Line > 0 {
		return fmt.Sprintf("%s the syntax error in %s near line %d.", verb, basename(c.Path), c.Line)
	}
	return fmt.Sprintf("%s the syntax error in %s.", verb, basename(c.Path))
}

// fallbackTemplate covers any Kind (including Unknown) with no entry in
// templateTable.
func fallbackTemplate(c InterventionContext) string {
	return "See the latest error before continuing."
}

// lookupTemplate resolves the template for (kind, strike), clamping
// strike into the kind's defined rung range — below the lowest rung
// clamps up to it, above the highest rung clamps down to it — and
// falling back to fallbackTemplate when the kind has no ladder at all.
func lookupTemplate(kind event.Kind, strike int) template {
	ladder, ok := templateTable[kind]
	if !ok || len(ladder) == 0 {
		return fallbackTemplate
	}
	if t, ok := ladder[strike]; ok {
		return t
	}
	minRung, maxRung := 0, 0
	for rung := range ladder {
		if minRung == 0 || rung < minRung {
			minRung = rung
		}
		if rung > maxRung {
			maxRung = rung
		}
	}
	if strike < minRung {
		return ladder[minRung]
	}
	return ladder[maxRung]
}

// StrikeFromOccurrences maps a signature's recall occurrence-count to its
// escalation strike level using the fixed bucketing {1, 2-3, 4-5, >=6}.
// Higher strikes select terser, more directive templates.
func StrikeFromOccurrences(occurrenceCount int) int {
	switch {
	case occurrenceCount <= 1:
		return 1
	case occurrenceCount <= 3:
		return 2
	case occurrenceCount <= 5:
		return 3
	default:
		return 4
	}
}

func basename(path string) string {
	if path == "" {
		return "the affected file"
	}
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}
