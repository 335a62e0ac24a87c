package watchdog

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/codeready-toolchain/cake/pkg/event"
)

// Pattern is a (kind, regex) pair the watchdog matches against streamed
// lines. The regex's named capture groups "path" and "line" map to
// Event.Path / Event.Line; other group names are ignored.
type Pattern struct {
	Kind  event.Kind
	Regex string
}

// CompiledPattern is a Pattern with its regex compiled, ready to match.
type CompiledPattern struct {
	Kind  event.Kind
	regex *regexp.Regexp
}

// PatternSet is an immutable, hot-swappable collection of compiled
// patterns, following a compile-and-skip-on-error idiom: a pattern that
// fails to compile is logged and dropped rather than aborting the
// process.
type PatternSet struct {
	compiled []CompiledPattern
}

// CompilePatterns compiles every entry in patterns, skipping (and logging)
// any that fail to compile.
func CompilePatterns(patterns []Pattern) *PatternSet {
	ps := &PatternSet{}
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			slog.Error("watchdog: failed to compile pattern, skipping", "kind", p.Kind, "error", err)
			continue
		}
		ps.compiled = append(ps.compiled, CompiledPattern{Kind: p.Kind, regex: re})
	}
	return ps
}

// Match returns the first pattern matching line, and the extracted path and
// line number from named capture groups "path" and "line", if present.
func (ps *PatternSet) Match(line string) (kind event.Kind, path string, lineNo int, matched bool) {
	for _, cp := range ps.compiled {
		m := cp.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		names := cp.regex.SubexpNames()
		var capturedPath string
		var capturedLine int
		for i, name := range names {
			if i == 0 || i >= len(m) {
				continue
			}
			switch name {
			case "path":
				capturedPath = m[i]
			case "line":
				fmt.Sscanf(m[i], "%d", &capturedLine)
			}
		}
		return cp.Kind, capturedPath, capturedLine, true
	}
	return "", "", 0, false
}

// DefaultPatterns is the built-in pattern set recognized out of the box.
// cmd/cake compiles it once at startup; the config has no pattern keys, so
// it is not extended or reloaded from config. Monitor.SetPatterns swaps in
// a different compiled set at run time.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Kind: event.KindImportMissing, Regex: `(?i)(ImportError|ModuleNotFoundError): No module named '[^']*'`},
		{Kind: event.KindImportMissing, Regex: `(?i)cannot find package "[^"]*"`},
		{Kind: event.KindSyntaxError, Regex: `(?i)SyntaxError: .*(?:File "(?P<path>[^"]+)", line (?P<line>\d+))?`},
		{Kind: event.KindAttributeError, Regex: `(?i)AttributeError: .*`},
		{Kind: event.KindTestFailure, Regex: `(?i)FAILED (?P<path>\S+)(::\S+)?`},
		{Kind: event.KindCoverageDrop, Regex: `(?i)coverage (?:decreased|dropped) .*`},
	}
}
