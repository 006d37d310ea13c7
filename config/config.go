// Package config loads the corvusDB node configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the node configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir" env:"CORVUS_DATA_DIR"`
	Translog TranslogConfig `yaml:"translog"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TranslogConfig holds translog-related configuration.
type TranslogConfig struct {
	// Locations are the candidate translog directories, searched in order
	// during recovery. New files are created in the first. Defaults to
	// <data_dir>/translog when empty.
	Locations []string `yaml:"locations"`

	// Compression selects the record payload codec: none, snappy, lz4,
	// or zstd.
	Compression string `yaml:"compression" env:"CORVUS_TRANSLOG_COMPRESSION"`

	// SyncInterval controls the durability cadence: negative disables the
	// background scheduler, zero syncs every operation, positive runs a
	// periodic sync check.
	SyncInterval time.Duration `yaml:"sync_interval" env:"CORVUS_TRANSLOG_SYNC_INTERVAL"`
}

// RecoveryConfig holds recovery-related configuration.
type RecoveryConfig struct {
	// WaitForSchemaUpdateTimeout bounds the post-recovery wait for schema
	// propagation acknowledgments, per type.
	WaitForSchemaUpdateTimeout time.Duration `yaml:"wait_for_schema_update_timeout" env:"CORVUS_WAIT_FOR_SCHEMA_UPDATE_TIMEOUT"`
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CORVUS_LOG_LEVEL"`
	Format string `yaml:"format" env:"CORVUS_LOG_FORMAT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Translog: TranslogConfig{
			Compression:  "none",
			SyncInterval: 5 * time.Second,
		},
		Recovery: RecoveryConfig{
			WaitForSchemaUpdateTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides.
func (c *Config) LoadFromEnv() {
	if dataDir := os.Getenv("CORVUS_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}
	if compression := os.Getenv("CORVUS_TRANSLOG_COMPRESSION"); compression != "" {
		c.Translog.Compression = compression
	}
	if interval := os.Getenv("CORVUS_TRANSLOG_SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Translog.SyncInterval = d
		}
	}
	if timeout := os.Getenv("CORVUS_WAIT_FOR_SCHEMA_UPDATE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Recovery.WaitForSchemaUpdateTimeout = d
		}
	}
	if level := os.Getenv("CORVUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("CORVUS_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	switch strings.ToLower(c.Translog.Compression) {
	case "", "none", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("unknown translog compression: %s", c.Translog.Compression)
	}
	if c.Recovery.WaitForSchemaUpdateTimeout < 0 {
		return fmt.Errorf("wait_for_schema_update_timeout cannot be negative")
	}
	return nil
}

// StoreDir returns the segment store directory for a shard.
func (c *Config) StoreDir(shardID string) string {
	return filepath.Join(c.DataDir, shardID, "store")
}

// TranslogLocations resolves the configured translog directories for a
// shard, falling back to <data_dir>/<shard>/translog.
func (c *Config) TranslogLocations(shardID string) []string {
	if len(c.Translog.Locations) > 0 {
		dirs := make([]string, len(c.Translog.Locations))
		for i, loc := range c.Translog.Locations {
			dirs[i] = filepath.Join(loc, shardID)
		}
		return dirs
	}
	return []string{filepath.Join(c.DataDir, shardID, "translog")}
}
