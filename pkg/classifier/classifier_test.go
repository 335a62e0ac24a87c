package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/cake/pkg/event"
)

func TestClassify_TestFailureWithoutPriorHistory(t *testing.T) {
	c := New(Config{})

	cl := c.Classify(event.Event{
		Kind: event.KindTestFailure,
		Raw:  "FAILED tests/test_x.py::test_y",
	})

	assert.Equal(t, event.KindTestFailure, cl.Kind)
	assert.Equal(t, event.SeverityMedium, cl.Severity)
	assert.GreaterOrEqual(t, cl.Confidence, 0.85)

	now := time.Now().UTC()
	assert.False(t, c.ShouldIntervene(cl, 0, time.Time{}, now), "first occurrence should not intervene")
	assert.False(t, c.ShouldIntervene(cl, 2, time.Time{}, now), "below the medium-severity recall threshold")
	assert.True(t, c.ShouldIntervene(cl, 3, time.Time{}, now), "3rd occurrence within the window should intervene")
}

func TestClassify_UnknownKindFallsBackToMedium(t *testing.T) {
	c := New(Config{})
	cl := c.Classify(event.Event{Kind: event.Kind("not-a-real-kind"), Raw: "whatever"})
	assert.Equal(t, event.KindUnknown, cl.Kind)
	assert.Equal(t, event.SeverityMedium, cl.Severity)
}

func TestShouldIntervene_CriticalAlwaysIntervenes(t *testing.T) {
	c := New(Config{})
	cl := event.Classification{Severity: event.SeverityCritical, Confidence: 0}
	now := time.Now().UTC()
	assert.True(t, c.ShouldIntervene(cl, 0, now, now), "critical bypasses cooldown entirely")
}

func TestShouldIntervene_HighSeverityGatedOnConfidenceFloor(t *testing.T) {
	c := New(Config{ConfidenceFloor: 0.8})
	now := time.Now().UTC()

	below := event.Classification{Severity: event.SeverityHigh, Confidence: 0.79}
	assert.False(t, c.ShouldIntervene(below, 0, time.Time{}, now))

	atFloor := event.Classification{Severity: event.SeverityHigh, Confidence: 0.8}
	assert.True(t, c.ShouldIntervene(atFloor, 0, time.Time{}, now))
}

func TestShouldIntervene_LowSeverityNeverIntervenes(t *testing.T) {
	c := New(Config{})
	cl := event.Classification{Severity: event.SeverityLow, Confidence: 1}
	now := time.Now().UTC()
	assert.False(t, c.ShouldIntervene(cl, 1000, time.Time{}, now))
}

func TestShouldIntervene_CooldownSuppressesRepeat(t *testing.T) {
	c := New(Config{CooldownMinutes: 15})
	cl := event.Classification{Severity: event.SeverityHigh, Confidence: 0.9}

	now := time.Now().UTC()
	last := now.Add(-5 * time.Minute)
	assert.False(t, c.ShouldIntervene(cl, 0, last, now), "within cooldown window")

	elapsed := now.Add(-16 * time.Minute)
	assert.True(t, c.ShouldIntervene(cl, 0, elapsed, now), "cooldown has elapsed")
}

func TestSeverityTable_OverridesBuiltinDefaults(t *testing.T) {
	table := NewSeverityTable(map[event.Kind]event.Severity{
		event.KindCoverageDrop: event.SeverityCritical,
	})
	assert.Equal(t, event.SeverityCritical, table.Severity(event.KindCoverageDrop))
	assert.Equal(t, event.SeverityHigh, table.Severity(event.KindImportMissing), "unaffected kinds keep the default")
}
