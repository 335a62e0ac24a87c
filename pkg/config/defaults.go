package config

// Defaults returns the baseline Config for strictness, before any
// operator overrides are merged on top. The three presets trade
// intervention aggressiveness for noise: paranoid intervenes sooner and
// remembers longer, minimal the opposite.
func Defaults(strictness Strictness) Config {
	base := Config{
		Version:    CurrentVersion,
		Strictness: strictness,
		Escalation: EscalationConfig{MaxStrikes: 4, CooldownMinutes: 15},
		Performance: PerformanceConfig{MaxLatencyMs: 50},
		Database:   DatabaseConfig{Path: "cake.db", TTLHours: 24},
		Snapshot:   SnapshotConfig{RepoPath: ".", RetentionHours: 168, MaxSizeGB: 5},
		Voice:      VoiceConfig{CorpusPath: "voice_corpus.txt"},
	}

	switch strictness {
	case StrictnessMinimal:
		base.Escalation.MaxStrikes = 6
		base.Escalation.CooldownMinutes = 30
		base.Database.TTLHours = 12
	case StrictnessParanoid:
		base.Escalation.MaxStrikes = 2
		base.Escalation.CooldownMinutes = 5
		base.Database.TTLHours = 72
		base.Snapshot.RetentionHours = 336
	}

	return base
}
