package slack

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/recall"
)

func TestBuildEscalationMessage_WithPriorIntervention(t *testing.T) {
	sig := recall.Sign(event.Event{Kind: event.KindImportMissing, Path: "app.py", Raw: "No module named 'foo'"})
	cl := event.Classification{
		Kind:        event.KindImportMissing,
		Severity:    event.SeverityHigh,
		Remediation: "Install the missing dependency.",
	}
	rec := recall.Record{
		Signature:         sig,
		OccurrenceCount:   6,
		InterventionCount: 4,
		LastIntervention:  "Operator (CAKE): Stop. Fix the unresolved import in app.py; it has recurred 6 times.",
	}

	blocks := BuildEscalationMessage(sig, cl, rec)
	require.Len(t, blocks, 3)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":warning:")
	assert.Contains(t, header.Text.Text, "import_missing")

	detail := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, detail.Text.Text, sig.String())
	assert.Contains(t, detail.Text.Text, "Install the missing dependency.")

	last := blocks[2].(*goslack.SectionBlock)
	assert.Contains(t, last.Text.Text, "Fix the unresolved import")
}

func TestBuildEscalationMessage_NoPriorIntervention(t *testing.T) {
	sig := recall.Sign(event.Event{Kind: event.KindSyntaxError, Path: "main.go", Raw: "unexpected EOF"})
	cl := event.Classification{Kind: event.KindSyntaxError, Severity: event.SeverityCritical}
	rec := recall.Record{Signature: sig, OccurrenceCount: 1}

	blocks := BuildEscalationMessage(sig, cl, rec)
	require.Len(t, blocks, 2)

	detail := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, detail.Text.Text, "none")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result), "result should be valid UTF-8")
	})
}
