package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Matching.MaxCoverSize != 4 {
		t.Errorf("MaxCoverSize = %d, want 4", cfg.Matching.MaxCoverSize)
	}
	if !cfg.Matching.EnableSAT {
		t.Error("EnableSAT = false, want true")
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matching.MaxCoverSize != Default().Matching.MaxCoverSize {
		t.Error("missing file did not yield defaults")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detweave.yaml")
	text := `
matching:
  max_cover_size: 6
  enable_sat: false
loops:
  invariance_check: true
workers: 8
cache_path: /tmp/detweave.db
logging:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Matching.MaxCoverSize != 6 {
		t.Errorf("MaxCoverSize = %d, want 6", cfg.Matching.MaxCoverSize)
	}
	if cfg.Matching.EnableSAT {
		t.Error("EnableSAT = true, want false")
	}
	if !cfg.Loops.InvarianceCheck {
		t.Error("InvarianceCheck = false, want true")
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	// Untouched knobs keep their defaults.
	if cfg.Matching.MaxBruteCandidates != 24 {
		t.Errorf("MaxBruteCandidates = %d, want 24", cfg.Matching.MaxBruteCandidates)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("matching:\n  max_cover_size: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted max_cover_size 0")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("matching: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted malformed yaml")
	}
}
