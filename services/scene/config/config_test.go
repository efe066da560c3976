// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "durable", cfg.Queue.Backend)
	assert.True(t, cfg.Storage.SyncWrites)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Service, cfg.Service)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service: casetrace-dev
logging:
  level: debug
storage:
  in_memory: true
queue:
  backend: memory
  rescanner:
    interval: 5s
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "casetrace-dev", cfg.Service)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 5*time.Second, cfg.Queue.Rescanner.Interval.Std())
	// Untouched fields keep defaults.
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "queue:\n  backend: carrier_pigeon\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"missing storage path", "storage:\n  path: \"\"\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDurationForms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  in_memory: true
  gc_interval: 90000000000
workers:
  zombie_after: 3m
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Storage.GCInterval.Std())
	assert.Equal(t, 3*time.Minute, cfg.Workers.ZombieAfter.Std())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CASETRACE_QUEUE_BACKEND", "memory")
	t.Setenv("CASETRACE_STORAGE_PATH", "/tmp/casetrace-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, "/tmp/casetrace-env", cfg.Storage.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
