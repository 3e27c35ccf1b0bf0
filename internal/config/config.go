// SPDX-License-Identifier: MIT

// Package config loads and validates moodpulse runtime configuration.
// Precedence: environment variables > config file (YAML) > defaults.
// The resulting Config is immutable process state; it is read once at
// startup and handed to components by value.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete runtime configuration of the daemon.
type Config struct {
	// Server
	ListenAddr  string `yaml:"listenAddr"`
	TLSCertPath string `yaml:"tlsCertPath"`
	TLSKeyPath  string `yaml:"tlsKeyPath"`

	// Integration endpoints
	BusURL           string `yaml:"busURL"`           // redis://host:port/db; empty selects the in-memory bus
	IdentityStoreURL string `yaml:"identityStoreURL"` // redis://host:port/db identity view
	IdentityRequired bool   `yaml:"identityRequired"` // refuse startup when the identity view is unreachable

	// Outcome stores
	OutcomeLogPath     string `yaml:"outcomeLogPath"`     // sqlite file for the cold append-only log
	OutcomeSnapshotDir string `yaml:"outcomeSnapshotDir"` // badger dir for the hot snapshot store

	// Pipeline sizing
	Shards          int           `yaml:"shards"`
	MaxSessionQueue int           `yaml:"maxSessionQueue"`
	SessionIdle     time.Duration `yaml:"sessionIdle"`

	// Ingest protection
	TenantRateLimit int `yaml:"tenantRateLimit"` // batches per minute per tenant
	MaxBatchBytes   int `yaml:"maxBatchBytes"`

	// Observability
	LogLevel        string  `yaml:"logLevel"`
	MetricsEnabled  bool    `yaml:"metricsEnabled"`
	TracingEnabled  bool    `yaml:"tracingEnabled"`
	TracingExporter string  `yaml:"tracingExporter"` // grpc or http
	TracingEndpoint string  `yaml:"tracingEndpoint"`
	TracingSampling float64 `yaml:"tracingSampling"`

	Version string `yaml:"-"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		Shards:             32,
		MaxSessionQueue:    1000,
		SessionIdle:        30 * time.Minute,
		TenantRateLimit:    600,
		MaxBatchBytes:      256 * 1024,
		OutcomeLogPath:     "moodpulse-outcomes.db",
		OutcomeSnapshotDir: "moodpulse-snapshots",
		LogLevel:           "info",
		MetricsEnabled:     true,
		TracingExporter:    "grpc",
		TracingSampling:    0.1,
	}
}

// Validate checks the configuration for values the daemon cannot start with.
// A non-nil error maps to exit code 64 (invalid configuration).
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.ListenAddr) == "" {
		problems = append(problems, "listen address must not be empty")
	}
	if c.Shards < 1 || c.Shards > 1024 {
		problems = append(problems, fmt.Sprintf("shards must be in [1,1024], got %d", c.Shards))
	}
	if c.MaxSessionQueue < 1 {
		problems = append(problems, fmt.Sprintf("max session queue must be >= 1, got %d", c.MaxSessionQueue))
	}
	if c.SessionIdle < time.Second {
		problems = append(problems, fmt.Sprintf("session idle timeout must be >= 1s, got %v", c.SessionIdle))
	}
	if c.TenantRateLimit < 1 {
		problems = append(problems, fmt.Sprintf("tenant rate limit must be >= 1, got %d", c.TenantRateLimit))
	}
	if c.MaxBatchBytes < 1024 {
		problems = append(problems, fmt.Sprintf("max batch bytes must be >= 1024, got %d", c.MaxBatchBytes))
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		problems = append(problems, "TLS cert and key must be set together")
	}
	if c.TracingEnabled && c.TracingExporter != "grpc" && c.TracingExporter != "http" {
		problems = append(problems, fmt.Sprintf("tracing exporter must be grpc or http, got %q", c.TracingExporter))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
