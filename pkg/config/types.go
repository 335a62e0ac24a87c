// Package config loads, validates, and hot-reloads CAKE's runtime
// configuration (C9): a single YAML document whose keys are layered over a
// strictness-preset baseline and re-validated on every change.
package config

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/cake/pkg/classifier"
	"github.com/codeready-toolchain/cake/pkg/voice"
)

// Strictness selects a baseline preset for the tunables that trade
// intervention aggressiveness against noise.
type Strictness string

const (
	StrictnessMinimal  Strictness = "minimal"
	StrictnessBalanced Strictness = "balanced"
	StrictnessParanoid Strictness = "paranoid"
)

func (s Strictness) valid() bool {
	switch s {
	case StrictnessMinimal, StrictnessBalanced, StrictnessParanoid:
		return true
	}
	return false
}

// EscalationConfig holds the strike limit and how long CAKE waits between
// interventions on the same signature. CooldownMinutes feeds the
// classifier's cooldown. MaxStrikes is range-checked by Validate but not
// read anywhere else: the controller escalates only when delivering an
// intervention fails, never on a strike count.
type EscalationConfig struct {
	MaxStrikes      int `yaml:"max_strikes"`
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// PerformanceConfig caps the interceptor's decision budget.
type PerformanceConfig struct {
	MaxLatencyMs int `yaml:"max_latency_ms"`
}

// DatabaseConfig locates the recall store and its record lifetime.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	TTLHours int    `yaml:"ttl_hours"`
}

// SafetyConfig extends the interceptor's built-in rule set with
// operator-supplied regex patterns, additive to DefaultRules.
type SafetyConfig struct {
	BlockedCommands      []string `yaml:"blocked_commands"`
	RequireConfirmation  []string `yaml:"require_confirmation"`
}

// SnapshotConfig controls the Snapshot Manager's repository and GC limits.
type SnapshotConfig struct {
	RepoPath       string `yaml:"repo_path"`
	RetentionHours int    `yaml:"retention_hours"`
	MaxSizeGB      int    `yaml:"max_size_gb"`
}

// VoiceConfig points at the Voice Gate's reference corpus and lets an
// operator extend the forbidden-substring list beyond the built-ins.
type VoiceConfig struct {
	CorpusPath          string   `yaml:"corpus_path"`
	ForbiddenSubstrings []string `yaml:"forbidden_substrings"`
}

// CurrentVersion is the only accepted value of Config.Version.
const CurrentVersion = "1.0"

// Config is one fully-resolved, validated CAKE configuration document.
// Values returned by Manager.Current are immutable snapshots: callers
// never observe a partially-applied reload.
type Config struct {
	Version     string           `yaml:"version"`
	Strictness  Strictness       `yaml:"strictness"`
	Escalation  EscalationConfig `yaml:"escalation"`
	Performance PerformanceConfig `yaml:"performance"`
	Database    DatabaseConfig   `yaml:"database"`
	Safety      SafetyConfig     `yaml:"safety"`
	Snapshot    SnapshotConfig   `yaml:"snapshot"`
	Voice       VoiceConfig      `yaml:"voice"`
}

// ClassifierConfig derives classifier.Config from the active snapshot:
// the strictness preset feeds the classifier's cooldown and confidence
// floor.
func (c *Config) ClassifierConfig() classifier.Config {
	floor := 0.8
	switch c.Strictness {
	case StrictnessMinimal:
		floor = 0.9
	case StrictnessParanoid:
		floor = 0.6
	}
	return classifier.Config{
		Severity:        classifier.NewSeverityTable(nil),
		CooldownMinutes: c.Escalation.CooldownMinutes,
		ConfidenceFloor: floor,
	}
}

// VoiceGateConfig derives voice.Config from the active snapshot, layering
// operator-supplied forbidden substrings on top of the built-ins.
func (c *Config) VoiceGateConfig() voice.Config {
	base := voice.DefaultConfig()
	base.ForbiddenSubstrings = append(append([]string{}, base.ForbiddenSubstrings...), c.Voice.ForbiddenSubstrings...)
	return base
}

// RecallTTL returns the record lifetime configured for the recall store.
func (c *Config) RecallTTL() time.Duration {
	return time.Duration(c.Database.TTLHours) * time.Hour
}

// SnapshotRetention returns the Snapshot Manager's GC age threshold.
func (c *Config) SnapshotRetention() time.Duration {
	return time.Duration(c.Snapshot.RetentionHours) * time.Hour
}

// SnapshotMaxSizeBytes returns the Snapshot Manager's GC size cap in bytes.
func (c *Config) SnapshotMaxSizeBytes() int64 {
	return int64(c.Snapshot.MaxSizeGB) * 1 << 30
}

// EscalationCooldown returns the configured inter-intervention cooldown.
func (c *Config) EscalationCooldown() time.Duration {
	return time.Duration(c.Escalation.CooldownMinutes) * time.Minute
}

// MaxLatency returns the interceptor's configured decision budget.
func (c *Config) MaxLatency() time.Duration {
	return time.Duration(c.Performance.MaxLatencyMs) * time.Millisecond
}

// Validate checks every field against its allowed range, returning every
// violation found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	if c.Version != CurrentVersion {
		errs = append(errs, NewValidationError("version", c.Version, fmt.Errorf("must be %q", CurrentVersion)))
	}
	if !c.Strictness.valid() {
		errs = append(errs, NewValidationError("strictness", c.Strictness, fmt.Errorf("must be one of minimal, balanced, paranoid")))
	}
	if c.Escalation.MaxStrikes < 1 || c.Escalation.MaxStrikes > 10 {
		errs = append(errs, NewValidationError("escalation.max_strikes", c.Escalation.MaxStrikes, fmt.Errorf("must be between 1 and 10")))
	}
	if c.Escalation.CooldownMinutes < 1 || c.Escalation.CooldownMinutes > 60 {
		errs = append(errs, NewValidationError("escalation.cooldown_minutes", c.Escalation.CooldownMinutes, fmt.Errorf("must be between 1 and 60")))
	}
	if c.Performance.MaxLatencyMs < 50 || c.Performance.MaxLatencyMs > 1000 {
		errs = append(errs, NewValidationError("performance.max_latency_ms", c.Performance.MaxLatencyMs, fmt.Errorf("must be between 50 and 1000")))
	}
	if c.Database.Path == "" {
		errs = append(errs, NewValidationError("database.path", c.Database.Path, fmt.Errorf("must not be empty")))
	}
	if c.Database.TTLHours < 1 || c.Database.TTLHours > 168 {
		errs = append(errs, NewValidationError("database.ttl_hours", c.Database.TTLHours, fmt.Errorf("must be between 1 and 168")))
	}
	if c.Snapshot.RetentionHours < 1 || c.Snapshot.RetentionHours > 720 {
		errs = append(errs, NewValidationError("snapshot.retention_hours", c.Snapshot.RetentionHours, fmt.Errorf("must be between 1 and 720")))
	}
	if c.Snapshot.MaxSizeGB < 1 || c.Snapshot.MaxSizeGB > 100 {
		errs = append(errs, NewValidationError("snapshot.max_size_gb", c.Snapshot.MaxSizeGB, fmt.Errorf("must be between 1 and 100")))
	}
	for _, pat := range c.Safety.BlockedCommands {
		if pat == "" {
			errs = append(errs, NewValidationError("safety.blocked_commands", pat, fmt.Errorf("must not be empty")))
		}
	}
	for _, pat := range c.Safety.RequireConfirmation {
		if pat == "" {
			errs = append(errs, NewValidationError("safety.require_confirmation", pat, fmt.Errorf("must not be empty")))
		}
	}
	return errs
}
