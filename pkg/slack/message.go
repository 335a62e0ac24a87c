package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/cake/pkg/event"
	"github.com/codeready-toolchain/cake/pkg/recall"
)

const maxBlockTextLength = 2900

var severityEmoji = map[event.Severity]string{
	event.SeverityCritical: ":rotating_light:",
	event.SeverityHigh:     ":warning:",
	event.SeverityMedium:   ":large_yellow_circle:",
	event.SeverityLow:      ":information_source:",
}

// BuildEscalationMessage creates the Block Kit blocks for a notification
// that CAKE could not resolve signature on its own and a human needs to
// look, carrying enough context (kind, severity, strike count, last
// intervention text) to resume the investigation without re-deriving it
// from logs.
func BuildEscalationMessage(sig recall.Signature, cl event.Classification, rec recall.Record) []goslack.Block {
	emoji := severityEmoji[cl.Severity]
	if emoji == "" {
		emoji = ":question:"
	}

	header := fmt.Sprintf("%s *CAKE escalation* — %s / %s", emoji, cl.Kind, cl.Severity)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	detail := fmt.Sprintf(
		"*Signature:* `%s`\n*Occurrences:* %d\n*Interventions tried:* %d\n*Remediation:* %s",
		sig.String(), rec.OccurrenceCount, rec.InterventionCount, orNone(cl.Remediation),
	)
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(detail), false, false),
		nil, nil,
	))

	if rec.LastIntervention != "" {
		last := fmt.Sprintf("*Last message sent:*\n%s", rec.LastIntervention)
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(last), false, false),
			nil, nil,
		))
	}

	return blocks
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated)_"
}
