// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Live.DebounceWindow != 300*time.Millisecond {
		t.Errorf("debounce window = %s, want 300ms", cfg.Live.DebounceWindow)
	}
	if cfg.Live.PollingInterval != 5*time.Second {
		t.Errorf("polling interval = %s, want 5s", cfg.Live.PollingInterval)
	}
	if cfg.Sync.HistorySize != 1000 {
		t.Errorf("history size = %d, want 1000", cfg.Sync.HistorySize)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("server:\n  port: 9100\nlive:\n  poll_limit: 50\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRIDFLEET_CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("server.port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Live.PollLimit != 50 {
		t.Errorf("live.poll_limit = %d, want 50", cfg.Live.PollLimit)
	}
	// Untouched keys keep defaults.
	if cfg.Reconcile.Interval != 30*time.Minute {
		t.Errorf("reconcile.interval = %s, want 30m", cfg.Reconcile.Interval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GRIDFLEET_CONFIG_PATH", path)
	t.Setenv("GRIDFLEET_SERVER_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("server.port = %d, want 9200 (env wins)", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"polling too fast", func(c *Config) { c.Live.PollingInterval = 100 * time.Millisecond }},
		{"zero debounce", func(c *Config) { c.Live.DebounceWindow = 0 }},
		{"zero history", func(c *Config) { c.Sync.HistorySize = 0 }},
		{"reconcile too frequent", func(c *Config) { c.Reconcile.Interval = time.Second }},
		{"nats no url no embed", func(c *Config) {
			c.NATS.URL = ""
			c.NATS.EmbeddedServer = false
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
