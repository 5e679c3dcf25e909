// Package config holds detweave configuration, loaded from YAML with
// sane defaults for every knob.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	// Matching bounds the detector cover search.
	Matching MatchingConfig `yaml:"matching"`

	// Loops controls repeat-block compilation.
	Loops LoopConfig `yaml:"loops"`

	// Workers caps the parallel flow-analysis fan-out. Zero or one
	// runs sequentially.
	Workers int `yaml:"workers"`

	// CachePath, when set, enables the sqlite detector cache.
	CachePath string `yaml:"cache_path"`

	// Logging configures the zap logger.
	Logging LoggingConfig `yaml:"logging"`
}

// MatchingConfig bounds the combinatorial cover search and its SAT
// fallback.
type MatchingConfig struct {
	// MaxCoverSize caps the brute-force subset size.
	MaxCoverSize int `yaml:"max_cover_size"`

	// MaxBruteCandidates caps the candidate pool for brute force;
	// larger pools go straight to the SAT solver.
	MaxBruteCandidates int `yaml:"max_brute_candidates"`

	// EnableSAT turns the XOR-SAT fallback on.
	EnableSAT bool `yaml:"enable_sat"`

	// SATVarCap and SATClauseCap bound the encoded problem; overflow
	// is treated as "no cover found", never as an error.
	SATVarCap    int `yaml:"sat_var_cap"`
	SATClauseCap int `yaml:"sat_clause_cap"`
}

// LoopConfig controls repeat-block compilation.
type LoopConfig struct {
	// InvarianceCheck re-derives the detectors between a loop's last
	// and first inner fragments and fails compilation when they differ
	// from the across-iteration matches.
	InvarianceCheck bool `yaml:"invariance_check"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Matching: MatchingConfig{
			MaxCoverSize:       4,
			MaxBruteCandidates: 24,
			EnableSAT:          true,
			SATVarCap:          512,
			SATClauseCap:       1 << 16,
		},
		Loops:   LoopConfig{InvarianceCheck: false},
		Workers: 4,
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Matching.MaxCoverSize < 1 {
		return nil, fmt.Errorf("matching.max_cover_size must be >= 1")
	}
	return cfg, nil
}
