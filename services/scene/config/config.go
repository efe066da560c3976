// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the service configuration from YAML,
// with sane defaults for every field so an empty file is a valid one.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/CaseTrace/services/scene/workers"
)

var validate = validator.New()

// Duration wraps time.Duration so YAML accepts the human form ("5s",
// "2m") as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML parses either a duration string or an integer.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var asInt int64
	if err := value.Decode(&asInt); err == nil {
		*d = Duration(asInt)
		return nil
	}
	var asString string
	if err := value.Decode(&asString); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	parsed, err := time.ParseDuration(asString)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", asString, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the human form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full service configuration.
type Config struct {
	// Service names this instance in logs and metrics.
	Service string `json:"service" yaml:"service" validate:"required"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Queue   QueueConfig   `json:"queue" yaml:"queue"`
	Workers WorkersConfig `json:"workers" yaml:"workers"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// JSON switches the stderr handler to JSON output.
	JSON bool `json:"json" yaml:"json"`

	// LogDir enables file logging when non-empty.
	LogDir string `json:"log_dir" yaml:"log_dir"`
}

// StorageConfig controls the embedded database.
type StorageConfig struct {
	// Path is the BadgerDB directory. Required unless InMemory.
	Path string `json:"path" yaml:"path"`

	// InMemory runs without persistence. For tests and local exploration.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites keeps commits durable before they are visible.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval is the value-log garbage collection period. 0 disables.
	GCInterval Duration `json:"gc_interval" yaml:"gc_interval"`

	// ExportDir is where the export worker writes report artifacts.
	ExportDir string `json:"export_dir" yaml:"export_dir" validate:"required"`
}

// QueueConfig selects and tunes the delivery transport.
type QueueConfig struct {
	// Backend is "memory" or "durable".
	Backend string `json:"backend" yaml:"backend" validate:"oneof=memory durable"`

	// Capacity is the per-type buffer of the memory backend.
	Capacity int `json:"capacity" yaml:"capacity" validate:"gt=0"`

	// MaxAttempts is the delivery cap before dead-lettering.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" validate:"gt=0"`

	Rescanner RescannerConfig `json:"rescanner" yaml:"rescanner"`
}

// RescannerConfig tunes lost-message recovery.
type RescannerConfig struct {
	Interval          Duration `json:"interval" yaml:"interval"`
	Grace             Duration `json:"grace" yaml:"grace"`
	EnqueuesPerSecond float64  `json:"enqueues_per_second" yaml:"enqueues_per_second" validate:"gt=0"`
}

// WorkersConfig tunes the consumer manager.
type WorkersConfig struct {
	DequeueTimeout      Duration `json:"dequeue_timeout" yaml:"dequeue_timeout"`
	HeartbeatInterval   Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	ZombieAfter         Duration `json:"zombie_after" yaml:"zombie_after"`
	ZombieSweepInterval Duration `json:"zombie_sweep_interval" yaml:"zombie_sweep_interval"`

	MaxRetries     int      `json:"max_retries" yaml:"max_retries" validate:"gte=0"`
	InitialBackoff Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     Duration `json:"max_backoff" yaml:"max_backoff"`
	Multiplier     float64  `json:"multiplier" yaml:"multiplier" validate:"gt=0"`
}

// ManagerConfig converts to the workers package form.
func (w WorkersConfig) ManagerConfig() workers.ManagerConfig {
	return workers.ManagerConfig{
		DequeueTimeout:      w.DequeueTimeout.Std(),
		HeartbeatInterval:   w.HeartbeatInterval.Std(),
		ZombieAfter:         w.ZombieAfter.Std(),
		ZombieSweepInterval: w.ZombieSweepInterval.Std(),
		Retry: workers.RetryConfig{
			MaxRetries:     w.MaxRetries,
			InitialBackoff: w.InitialBackoff.Std(),
			MaxBackoff:     w.MaxBackoff.Std(),
			Multiplier:     w.Multiplier,
		},
	}
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// Default returns the production defaults.
func Default() *Config {
	manager := workers.DefaultManagerConfig()
	return &Config{
		Service: "casetrace",
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Path:       "./data/casetrace",
			SyncWrites: true,
			GCInterval: Duration(5 * time.Minute),
			ExportDir:  "./data/exports",
		},
		Queue: QueueConfig{
			Backend:     "durable",
			Capacity:    1000,
			MaxAttempts: 3,
			Rescanner: RescannerConfig{
				Interval:          Duration(30 * time.Second),
				Grace:             Duration(15 * time.Second),
				EnqueuesPerSecond: 50,
			},
		},
		Workers: WorkersConfig{
			DequeueTimeout:      Duration(manager.DequeueTimeout),
			HeartbeatInterval:   Duration(manager.HeartbeatInterval),
			ZombieAfter:         Duration(manager.ZombieAfter),
			ZombieSweepInterval: Duration(manager.ZombieSweepInterval),
			MaxRetries:          manager.Retry.MaxRetries,
			InitialBackoff:      Duration(manager.Retry.InitialBackoff),
			MaxBackoff:          Duration(manager.Retry.MaxBackoff),
			Multiplier:          manager.Retry.Multiplier,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file (if any),
// then CASETRACE_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the environment overrides used in deployments where
// editing the config file is inconvenient (containers, CI).
func (c *Config) applyEnv() {
	if v := os.Getenv("CASETRACE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CASETRACE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CASETRACE_EXPORT_DIR"); v != "" {
		c.Storage.ExportDir = v
	}
	if v := os.Getenv("CASETRACE_QUEUE_BACKEND"); v != "" {
		c.Queue.Backend = v
	}
	if v := os.Getenv("CASETRACE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// Validate checks field constraints and cross-field coherence.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required unless storage.in_memory is set")
	}
	if c.Queue.Rescanner.Interval <= 0 {
		return fmt.Errorf("queue.rescanner.interval must be positive")
	}
	return c.Workers.ManagerConfig().Validate()
}
