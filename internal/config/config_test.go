package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_Load(t *testing.T) {
	tempDir := t.TempDir()

	validToml := `
listen_addr = "127.0.0.1:9000"
database_url = "postgres://localhost:5432/heldtxn"
max_concurrent = 25
default_timeout_seconds = 20
max_timeout_seconds = 120
reaper_interval_seconds = 2
`
	validPath := filepath.Join(tempDir, "valid.toml")
	if err := os.WriteFile(validPath, []byte(validToml), 0644); err != nil {
		t.Fatalf("failed to write valid config file: %v", err)
	}

	cfg := New()
	if err := cfg.Load(validPath); err != nil {
		t.Fatalf("expected no error loading valid config, got: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Errorf("expected listen_addr to be overridden, got %q", cfg.ListenAddr)
	}
	if cfg.MaxConcurrent != 25 {
		t.Errorf("expected max_concurrent 25, got %d", cfg.MaxConcurrent)
	}
	// Fields untouched by the file keep New()'s defaults.
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level to survive, got %q", cfg.LogLevel)
	}

	cfg2 := New()
	if err := cfg2.Load(filepath.Join(tempDir, "nonexistent.toml")); err == nil {
		t.Fatal("expected an error for a non-existent file")
	}

	invalidToml := `listen_addr = 9000` // should be a string
	invalidPath := filepath.Join(tempDir, "invalid.toml")
	if err := os.WriteFile(invalidPath, []byte(invalidToml), 0644); err != nil {
		t.Fatalf("failed to write invalid config file: %v", err)
	}
	cfg3 := New()
	if err := cfg3.Load(invalidPath); err == nil {
		t.Fatal("expected an error for invalid TOML")
	}
}

func TestConfig_Validate_RequiresDatabaseURL(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing database_url to fail validation")
	}
	cfg.DatabaseURL = "postgres://localhost/db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected validation to pass, got: %v", err)
	}
}

func TestConfig_Validate_RejectsNonPositiveKnobs(t *testing.T) {
	cfg := New()
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected max_concurrent=0 to fail validation")
	}
}
