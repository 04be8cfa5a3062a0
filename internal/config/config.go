// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

// Package config loads layered configuration for the sync core:
// built-in defaults, then an optional YAML file, then environment
// variables. Precedence: ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	NATS      NATSConfig      `koanf:"nats"`
	Live      LiveConfig      `koanf:"live"`
	Sync      SyncConfig      `koanf:"sync"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the ops/status HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitReqs/RateLimitWindow bound requests per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// BackendConfig points at the authoritative store's REST interface.
type BackendConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// NATSConfig configures the push-channel transport.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	DurableName    string        `koanf:"durable_name"`
	QueueGroup     string        `koanf:"queue_group"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	AckWaitTimeout time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout   time.Duration `koanf:"close_timeout"`
}

// LiveConfig tunes the live update pipeline.
type LiveConfig struct {
	EnablePolling   bool          `koanf:"enable_polling"`
	PollingInterval time.Duration `koanf:"polling_interval"`
	PollLookback    time.Duration `koanf:"poll_lookback"`
	PollLimit       int           `koanf:"poll_limit"`
	DebounceWindow  time.Duration `koanf:"debounce_window"`

	// TripLookupRate/Burst cap fetch-on-miss queries against the backend.
	TripLookupRate  float64 `koanf:"trip_lookup_rate"`
	TripLookupBurst int     `koanf:"trip_lookup_burst"`
}

// SyncConfig tunes the write-back engine.
type SyncConfig struct {
	// DataDir holds the badger failure queue.
	DataDir     string `koanf:"data_dir"`
	HistorySize int    `koanf:"history_size"`
}

// ReconcileConfig tunes the reconciliation sweep.
type ReconcileConfig struct {
	Interval       time.Duration `koanf:"interval"`
	RecentWindow   time.Duration `koanf:"recent_window"`
	SpotCheckLimit int           `koanf:"spot_check_limit"`
}

// LoggingConfig mirrors logging.Config for file/env control.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all sensible default values.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8642,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Backend: BackendConfig{
			URL:     "",
			APIKey:  "",
			Timeout: 30 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:        true,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			StreamName:     "FLEET",
			DurableName:    "fleet-live",
			QueueGroup:     "live",
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			AckWaitTimeout: 30 * time.Second,
			CloseTimeout:   30 * time.Second,
		},
		Live: LiveConfig{
			EnablePolling:   true,
			PollingInterval: 5 * time.Second,
			PollLookback:    5 * time.Minute,
			PollLimit:       100,
			DebounceWindow:  300 * time.Millisecond,
			TripLookupRate:  20,
			TripLookupBurst: 40,
		},
		Sync: SyncConfig{
			DataDir:     "/data/gridfleet/failed-syncs",
			HistorySize: 1000,
		},
		Reconcile: ReconcileConfig{
			Interval:       30 * time.Minute,
			RecentWindow:   24 * time.Hour,
			SpotCheckLimit: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Live.PollingInterval < time.Second {
		return fmt.Errorf("live.polling_interval below 1s: %s", c.Live.PollingInterval)
	}
	if c.Live.DebounceWindow <= 0 {
		return fmt.Errorf("live.debounce_window must be positive")
	}
	if c.Sync.HistorySize < 1 {
		return fmt.Errorf("sync.history_size must be positive")
	}
	if c.Reconcile.Interval < time.Minute {
		return fmt.Errorf("reconcile.interval below 1m: %s", c.Reconcile.Interval)
	}
	if c.Reconcile.SpotCheckLimit < 1 {
		return fmt.Errorf("reconcile.spot_check_limit must be positive")
	}
	if c.NATS.Enabled && c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("nats.url required when embedded server is disabled")
	}
	return nil
}
