package voice

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/cake/pkg/metrics"
)

// Config holds the Voice Gate's structural rules, sourced from the active
// config snapshot's voice.* keys.
type Config struct {
	ApprovedPrefixes    []string
	ApprovedVerbs       []string
	ForbiddenSubstrings []string
	MaxSentences        int
	SimilarityThreshold float64
}

// Prefix is the Voice Gate's sole approved prefix: every intervention
// must start with this exact string.
const Prefix = "Operator (CAKE): "

// DefaultConfig returns CAKE's built-in voice rules, used when the config
// snapshot doesn't override them.
func DefaultConfig() Config {
	return Config{
		ApprovedPrefixes:    []string{Prefix},
		ApprovedVerbs:       []string{"Run", "Check", "Fix", "Try", "See", "Stop"},
		ForbiddenSubstrings: []string{"sorry", "apologies", "I think", "maybe", "perhaps", "might want to"},
		MaxSentences:        3,
		SimilarityThreshold: 0.90,
	}
}

// Result reports the outcome of validating a candidate message, including
// every structural rule it failed (not just the first), so callers (the
// template engine's retry loop) can decide whether a simpler template is
// likely to fare better.
type Result struct {
	Approved   bool
	Similarity float64
	Reasons    []string
}

// Gate is the Voice Gate (C2): it validates candidate operator messages
// against structural rules and a similarity floor before they may reach
// the supervised agent. Gate never mutates state and is safe for
// concurrent use.
type Gate struct {
	cfg    Config
	scorer *SimilarityScorer
}

// NewGate constructs a Gate from cfg and corpus. A nil corpus runs the
// gate in degraded (lexical-similarity-only) mode rather than failing
// open.
func NewGate(cfg Config, corpus *Corpus) *Gate {
	return &Gate{cfg: cfg, scorer: NewSimilarityScorer(corpus)}
}

// Degraded reports whether the gate's similarity scoring has fallen back
// to lexical-only matching.
func (g *Gate) Degraded() bool { return g.scorer.Degraded() }

// Validate runs every structural rule against candidate and scores its
// similarity to the reference corpus. A message passes only if every
// structural rule passes AND similarity >= the configured threshold.
func (g *Gate) Validate(candidate string) Result {
	var reasons []string

	if !g.hasApprovedPrefix(candidate) {
		reasons = append(reasons, "missing approved prefix")
	}

	sentences := splitSentences(candidate)
	if len(sentences) == 0 {
		reasons = append(reasons, "empty message")
	} else if len(sentences) > g.cfg.MaxSentences {
		reasons = append(reasons, fmt.Sprintf("exceeds max sentence count (%d > %d)", len(sentences), g.cfg.MaxSentences))
	}

	if !g.hasApprovedLeadingVerb(sentences) {
		reasons = append(reasons, "leading clause has no approved verb")
	}

	if forbidden := g.firstForbiddenSubstring(candidate); forbidden != "" {
		reasons = append(reasons, fmt.Sprintf("contains forbidden substring %q", forbidden))
	}

	similarity := g.scorer.Best(candidate)
	metrics.VoiceSimilarityScore.Observe(similarity)
	if similarity < g.cfg.SimilarityThreshold {
		reasons = append(reasons, fmt.Sprintf("similarity %.2f below threshold %.2f", similarity, g.cfg.SimilarityThreshold))
	}

	return Result{
		Approved:   len(reasons) == 0,
		Similarity: similarity,
		Reasons:    reasons,
	}
}

func (g *Gate) hasApprovedPrefix(candidate string) bool {
	for _, p := range g.cfg.ApprovedPrefixes {
		if strings.HasPrefix(candidate, p) {
			return true
		}
	}
	return len(g.cfg.ApprovedPrefixes) == 0
}

// hasApprovedLeadingVerb checks that every imperative clause (sentence)
// begins with one of the approved verbs — CAKE's operator voice is
// directive, not hedging, by construction. The prefix
// is stripped only from the first sentence, since it precedes the first
// clause rather than being part of it.
func (g *Gate) hasApprovedLeadingVerb(sentences []string) bool {
	if len(g.cfg.ApprovedVerbs) == 0 {
		return true
	}
	if len(sentences) == 0 {
		return false
	}
	for i, sentence := range sentences {
		clause := sentence
		if i == 0 {
			clause = stripPrefix(clause)
		}
		if !g.leadingWordApproved(clause) {
			return false
		}
	}
	return true
}

func (g *Gate) leadingWordApproved(clause string) bool {
	words := strings.Fields(clause)
	if len(words) == 0 {
		return false
	}
	lead := strings.ToLower(strings.TrimFunc(words[0], func(r rune) bool { return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') }))
	for _, v := range g.cfg.ApprovedVerbs {
		if strings.ToLower(v) == lead {
			return true
		}
	}
	return false
}

func stripPrefix(sentence string) string {
	for _, sep := range []string{", ", ": "} {
		if idx := strings.Index(sentence, sep); idx != -1 {
			return sentence[idx+len(sep):]
		}
	}
	return sentence
}

func (g *Gate) firstForbiddenSubstring(candidate string) string {
	lower := strings.ToLower(candidate)
	for _, f := range g.cfg.ForbiddenSubstrings {
		if strings.Contains(lower, strings.ToLower(f)) {
			return f
		}
	}
	return ""
}

// splitSentences does minimal sentence splitting on '.', '!', '?'
// terminators followed by whitespace or the end of the text (so the dot in
// a file name such as "app.py" does not end a sentence), discarding empty
// fragments. It is intentionally naive — CAKE's templates are short,
// fixed-shape sentences, not prose requiring a real sentence tokenizer.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			if next := i + 1; next < len(s) && s[next] != ' ' && s[next] != '\t' && s[next] != '\n' {
				continue
			}
			frag := strings.TrimSpace(s[start : i+1])
			if frag != "" {
				out = append(out, frag)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
