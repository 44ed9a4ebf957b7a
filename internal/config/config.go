// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package config loads GraphVault configuration in three layers with clear
// precedence: built-in defaults, then an optional YAML file, then
// GRAPHVAULT_* environment variables. A double underscore in an environment
// variable separates nesting levels, so GRAPHVAULT_SNAPSHOTS__RETENTION_DAYS
// maps to snapshots.retention_days.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix guards against unrelated environment variables leaking into the
// configuration tree.
const envPrefix = "GRAPHVAULT_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete GraphVault configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Graphs      GraphsConfig      `koanf:"graphs"`
	Snapshots   SnapshotsConfig   `koanf:"snapshots"`
	Replication ReplicationConfig `koanf:"replication"`
	Recovery    RecoveryConfig    `koanf:"recovery"`
	Journal     JournalConfig     `koanf:"journal"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig configures the HTTP API. APIKey, when set, is the bearer
// token peers must present on the health and snapshot upload endpoints; it
// is the counterpart of the per-target credential on the sending side.
type ServerConfig struct {
	Host                   string `koanf:"host"`
	Port                   int    `koanf:"port"`
	APIKey                 string `koanf:"api_key"`
	RateLimit              int    `koanf:"rate_limit"`
	RateWindowSeconds      int    `koanf:"rate_window_seconds"`
	ReadTimeoutSeconds     int    `koanf:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `koanf:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GraphsConfig describes the graphs this instance protects.
type GraphsConfig struct {
	// DataDir is the root under which each graph keeps its working
	// directory, one subdirectory per graph id.
	DataDir string `koanf:"data_dir"`

	// IDs lists the graphs registered at startup. More graphs can be
	// registered at runtime through the API.
	IDs []string `koanf:"ids"`
}

// Workdir returns the working directory for a graph.
func (g GraphsConfig) Workdir(graphID string) string {
	return filepath.Join(g.DataDir, graphID)
}

// SnapshotsConfig configures snapshot storage and retention.
type SnapshotsConfig struct {
	BaseDir                string `koanf:"base_dir"`
	RetentionDays          int    `koanf:"retention_days"`
	CleanupIntervalMinutes int    `koanf:"cleanup_interval_minutes"`
	SweepIntervalMinutes   int    `koanf:"sweep_interval_minutes"`
}

// Retention returns the snapshot retention window.
func (s SnapshotsConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// CleanupInterval returns the minimum time between retention sweeps.
func (s SnapshotsConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalMinutes) * time.Minute
}

// SweepInterval returns how often the background sweep service ticks.
func (s SnapshotsConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

// ReplicationConfig configures replication targets and health monitoring.
type ReplicationConfig struct {
	Targets                    []TargetConfig `koanf:"targets"`
	HealthCheckIntervalSeconds int            `koanf:"health_check_interval_seconds"`
	ProbesPerSecond            float64        `koanf:"probes_per_second"`
}

// HealthCheckInterval returns how often the background health monitor runs.
func (r ReplicationConfig) HealthCheckInterval() time.Duration {
	return time.Duration(r.HealthCheckIntervalSeconds) * time.Second
}

// TargetConfig declares one replication target in the config file.
// MaxConcurrent bounds simultaneous uploads to the target; zero means
// unbounded.
type TargetConfig struct {
	ID            string `koanf:"id"`
	Name          string `koanf:"name"`
	URL           string `koanf:"url"`
	Credential    string `koanf:"credential"`
	Enabled       bool   `koanf:"enabled"`
	MaxConcurrent int    `koanf:"max_concurrent"`
}

// RecoveryConfig configures recovery point automation.
type RecoveryConfig struct {
	AutoCheckpoint            bool `koanf:"auto_checkpoint"`
	CheckpointIntervalMinutes int  `koanf:"checkpoint_interval_minutes"`
}

// CheckpointInterval returns the automatic checkpoint cadence.
func (r RecoveryConfig) CheckpointInterval() time.Duration {
	return time.Duration(r.CheckpointIntervalMinutes) * time.Minute
}

// JournalConfig configures the on-disk operation journal.
type JournalConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Path          string `koanf:"path"`
	SyncWrites    bool   `koanf:"sync_writes"`
	RetentionDays int    `koanf:"retention_days"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Output string `koanf:"output"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:                   "0.0.0.0",
			Port:                   8480,
			RateLimit:              100,
			RateWindowSeconds:      60,
			ReadTimeoutSeconds:     30,
			WriteTimeoutSeconds:    330, // generous: peer uploads stream large archives
			ShutdownTimeoutSeconds: 15,
		},
		Graphs: GraphsConfig{
			DataDir: "./data/graphs",
		},
		Snapshots: SnapshotsConfig{
			BaseDir:                "./data/snapshots",
			RetentionDays:          7,
			CleanupIntervalMinutes: 60,
			SweepIntervalMinutes:   15,
		},
		Replication: ReplicationConfig{
			HealthCheckIntervalSeconds: 60,
			ProbesPerSecond:            2,
		},
		Recovery: RecoveryConfig{
			AutoCheckpoint:            false,
			CheckpointIntervalMinutes: 360,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          "./data/journal",
			SyncWrites:    false,
			RetentionDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or a
// discovered one when path is empty), and environment variables, then
// validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envTransform maps GRAPHVAULT_SECTION__KEY_NAME to section.key_name.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// findConfigFile probes the conventional locations for a config file.
func findConfigFile() string {
	if path := os.Getenv("GRAPHVAULT_CONFIG"); path != "" {
		return path
	}
	candidates := []string{
		"graphvault.yaml",
		"config/graphvault.yaml",
		"/etc/graphvault/graphvault.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks the configuration for values that would make the service
// misbehave at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("%w: server.rate_limit must be positive", ErrInvalid)
	}
	if c.Graphs.DataDir == "" {
		return fmt.Errorf("%w: graphs.data_dir must not be empty", ErrInvalid)
	}
	if c.Snapshots.BaseDir == "" {
		return fmt.Errorf("%w: snapshots.base_dir must not be empty", ErrInvalid)
	}
	if c.Snapshots.RetentionDays < 1 {
		return fmt.Errorf("%w: snapshots.retention_days must be positive", ErrInvalid)
	}
	if c.Snapshots.CleanupIntervalMinutes < 1 {
		return fmt.Errorf("%w: snapshots.cleanup_interval_minutes must be positive", ErrInvalid)
	}
	if c.Replication.ProbesPerSecond <= 0 {
		return fmt.Errorf("%w: replication.probes_per_second must be positive", ErrInvalid)
	}

	seen := make(map[string]struct{}, len(c.Replication.Targets))
	for i, target := range c.Replication.Targets {
		if target.ID == "" {
			return fmt.Errorf("%w: replication.targets[%d] missing id", ErrInvalid, i)
		}
		if !strings.HasPrefix(target.URL, "http://") && !strings.HasPrefix(target.URL, "https://") {
			return fmt.Errorf("%w: replication target %s has invalid url %q", ErrInvalid, target.ID, target.URL)
		}
		if target.MaxConcurrent < 0 {
			return fmt.Errorf("%w: replication target %s max_concurrent must not be negative", ErrInvalid, target.ID)
		}
		if _, dup := seen[target.ID]; dup {
			return fmt.Errorf("%w: duplicate replication target id %s", ErrInvalid, target.ID)
		}
		seen[target.ID] = struct{}{}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("%w: journal.path must not be empty when journal is enabled", ErrInvalid)
	}
	if c.Recovery.AutoCheckpoint && c.Recovery.CheckpointIntervalMinutes < 1 {
		return fmt.Errorf("%w: recovery.checkpoint_interval_minutes must be positive", ErrInvalid)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format must be json or console", ErrInvalid)
	}
	return nil
}
