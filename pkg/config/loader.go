package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads, env-expands, and parses the YAML document at path, merges it
// over the strictness-appropriate defaults, and validates the result:
// read raw bytes, expand env references, unmarshal, then layer onto
// defaults rather than trusting the file to be complete.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Err: err}
	}

	var overlay Config
	if err := yaml.Unmarshal(expandEnv(raw), &overlay); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("parsing YAML: %w", err)}
	}

	strictness := overlay.Strictness
	if strictness == "" {
		strictness = StrictnessBalanced
	}

	cfg := Defaults(strictness)
	if err := mergo.Merge(&cfg, overlay, mergo.WithOverride); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("merging overrides onto defaults: %w", err)}
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %d invalid field(s), first: %w", len(errs), errs[0])
	}

	return &cfg, nil
}
