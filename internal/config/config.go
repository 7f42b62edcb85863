// Package config handles loading and parsing the held-transaction
// daemon's configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/sushant-115/heldtxn/core/heldtx"
	"github.com/sushant-115/heldtxn/pkg/logger"
	"github.com/sushant-115/heldtxn/pkg/telemetry"
)

// Config holds all configuration for the held-transaction daemon. Struct
// tags map TOML keys to fields, mirroring the pack's own TOML-backed
// service config.
type Config struct {
	ListenAddr  string `toml:"listen_addr"`
	DatabaseURL string `toml:"database_url"`

	// MaxConcurrent bounds the number of simultaneously held transactions
	// per process. Enforced by the Manager at create time.
	MaxConcurrent int `toml:"max_concurrent"`
	// DefaultTimeoutSeconds is applied when a caller omits timeout_seconds.
	DefaultTimeoutSeconds int `toml:"default_timeout_seconds"`
	// MaxTimeoutSeconds is the server-side ceiling; requested timeouts are
	// silently clamped to it.
	MaxTimeoutSeconds int `toml:"max_timeout_seconds"`
	// ReaperIntervalSeconds is the sleep between reaper sweeps.
	ReaperIntervalSeconds int `toml:"reaper_interval_seconds"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Telemetry telemetry.Config `toml:"telemetry"`
}

// Default values for the four transaction-core knobs, per spec.
const (
	DefaultMaxConcurrent         = 10
	DefaultDefaultTimeoutSeconds = 30
	DefaultMaxTimeoutSeconds     = 60
	DefaultReaperIntervalSeconds = 5
)

// New returns a Config populated with the defaults a caller gets when a
// field is never set by a config file.
func New() *Config {
	return &Config{
		ListenAddr:            "localhost:8080",
		DatabaseURL:           "",
		MaxConcurrent:         DefaultMaxConcurrent,
		DefaultTimeoutSeconds: DefaultDefaultTimeoutSeconds,
		MaxTimeoutSeconds:     DefaultMaxTimeoutSeconds,
		ReaperIntervalSeconds: DefaultReaperIntervalSeconds,
		LogLevel:              "info",
		LogFormat:             "json",
		Telemetry: telemetry.Config{
			Enabled:          false,
			ServiceName:      "heldtxnd",
			PrometheusPort:   9464,
			TraceSampleRatio: 1.0,
		},
	}
}

// Load reads a TOML configuration file from the given path and populates
// the Config struct, starting from New()'s defaults so an omitted field
// keeps its default rather than zeroing out.
func (c *Config) Load(path string) error {
	_, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", path, err)
	}
	return c.Validate()
}

// Validate rejects configuration combinations the held-transaction core
// cannot operate under.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default_timeout_seconds must be positive, got %d", c.DefaultTimeoutSeconds)
	}
	if c.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("max_timeout_seconds must be positive, got %d", c.MaxTimeoutSeconds)
	}
	if c.ReaperIntervalSeconds <= 0 {
		return fmt.Errorf("reaper_interval_seconds must be positive, got %d", c.ReaperIntervalSeconds)
	}
	return nil
}

// HeldTxConfig adapts this Config's four transaction-core knobs to
// heldtx.Config.
func (c *Config) HeldTxConfig() heldtx.Config {
	return heldtx.Config{
		MaxConcurrent:         c.MaxConcurrent,
		DefaultTimeoutSeconds: c.DefaultTimeoutSeconds,
		MaxTimeoutSeconds:     c.MaxTimeoutSeconds,
		ReaperIntervalSeconds: c.ReaperIntervalSeconds,
	}
}

// LoggerConfig adapts this Config's logging fields to pkg/logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		OutputFile: "stdout",
	}
}
