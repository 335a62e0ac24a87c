package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCorpus() *Corpus {
	return NewCorpusFromTexts([]string{
		Prefix + "Check the failing import before continuing.",
		Prefix + "Check the test assertion matches the new behavior.",
		Prefix + "Check the syntax error on the noted line.",
	})
}

func TestGate_ApprovesWellFormedMessage(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate(Prefix + "Check the failing import in the module before continuing.")
	assert.True(t, res.Approved, "reasons: %v", res.Reasons)
	assert.Empty(t, res.Reasons)
}

func TestGate_RejectsMissingPrefix(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate("Check the failing import before continuing.")
	require.False(t, res.Approved)
	assert.Contains(t, res.Reasons, "missing approved prefix")
}

func TestGate_RejectsForbiddenSubstring(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate(Prefix + "I think maybe you might want to check the import.")
	require.False(t, res.Approved)
	found := false
	for _, r := range res.Reasons {
		if r == `contains forbidden substring "I think"` {
			found = true
		}
	}
	assert.True(t, found, "reasons: %v", res.Reasons)
}

func TestGate_RejectsUnapprovedVerb(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate(Prefix + "Please check the import before continuing.")
	require.False(t, res.Approved)
	assert.Contains(t, res.Reasons, "leading clause has no approved verb")
}

func TestGate_RejectsTooManySentences(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate(Prefix + "Check this. Check that. Check the other. Stop now.")
	require.False(t, res.Approved)
	hasSentenceReason := false
	for _, r := range res.Reasons {
		if r == "exceeds max sentence count (4 > 3)" {
			hasSentenceReason = true
		}
	}
	assert.True(t, hasSentenceReason, "reasons: %v", res.Reasons)
}

func TestGate_RejectsLowSimilarity(t *testing.T) {
	g := NewGate(DefaultConfig(), testCorpus())
	res := g.Validate(Prefix + "Stop dancing around the fire and sing a forgotten song.")
	require.False(t, res.Approved)
	hasSimilarityReason := false
	for _, r := range res.Reasons {
		if len(r) >= 10 && r[:10] == "similarity" {
			hasSimilarityReason = true
		}
	}
	assert.True(t, hasSimilarityReason, "reasons: %v", res.Reasons)
}

func TestGate_DegradesToLexicalWithoutCorpus(t *testing.T) {
	g := NewGate(DefaultConfig(), nil)
	assert.True(t, g.Degraded())
	// With no corpus there is nothing to compare against, so the lexical
	// fallback scores 0 rather than letting the message pass.
	res := g.Validate(Prefix + "Check the failing import before continuing.")
	assert.Equal(t, 0.0, res.Similarity)
}
