// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var envKeys = []string{
	"LISTEN_ADDR",
	"TLS_CERT_PATH",
	"TLS_KEY_PATH",
	"BUS_URL",
	"IDENTITY_STORE_URL",
	"IDENTITY_REQUIRED",
	"OUTCOME_LOG_BUCKET",
	"OUTCOME_SNAPSHOT_DIR",
	"SHARDS",
	"MAX_SESSION_QUEUE",
	"SESSION_IDLE_MS",
	"TENANT_RATE_LIMIT",
	"MAX_BATCH_BYTES",
	"LOG_LEVEL",
	"METRICS_ENABLED",
	"TRACING_ENABLED",
	"TRACING_EXPORTER",
	"TRACING_ENDPOINT",
	"TRACING_SAMPLING",
}

// KnownEnvKeys returns all environment keys read by ApplyEnv.
func KnownEnvKeys() []string {
	out := make([]string, len(envKeys))
	copy(out, envKeys)
	return out
}

// ApplyEnv overlays environment values onto cfg using the provided getenv.
// Environment variables are read exactly once per load; unset or malformed
// values leave the existing setting untouched.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg.ListenAddr = getString(getenv, "LISTEN_ADDR", cfg.ListenAddr)
	cfg.TLSCertPath = getString(getenv, "TLS_CERT_PATH", cfg.TLSCertPath)
	cfg.TLSKeyPath = getString(getenv, "TLS_KEY_PATH", cfg.TLSKeyPath)

	cfg.BusURL = getString(getenv, "BUS_URL", cfg.BusURL)
	cfg.IdentityStoreURL = getString(getenv, "IDENTITY_STORE_URL", cfg.IdentityStoreURL)
	cfg.IdentityRequired = getBool(getenv, "IDENTITY_REQUIRED", cfg.IdentityRequired)

	cfg.OutcomeLogPath = getString(getenv, "OUTCOME_LOG_BUCKET", cfg.OutcomeLogPath)
	cfg.OutcomeSnapshotDir = getString(getenv, "OUTCOME_SNAPSHOT_DIR", cfg.OutcomeSnapshotDir)

	cfg.Shards = getInt(getenv, "SHARDS", cfg.Shards)
	cfg.MaxSessionQueue = getInt(getenv, "MAX_SESSION_QUEUE", cfg.MaxSessionQueue)
	if ms := getInt(getenv, "SESSION_IDLE_MS", 0); ms > 0 {
		cfg.SessionIdle = time.Duration(ms) * time.Millisecond
	}

	cfg.TenantRateLimit = getInt(getenv, "TENANT_RATE_LIMIT", cfg.TenantRateLimit)
	cfg.MaxBatchBytes = getInt(getenv, "MAX_BATCH_BYTES", cfg.MaxBatchBytes)

	cfg.LogLevel = getString(getenv, "LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = getBool(getenv, "METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.TracingEnabled = getBool(getenv, "TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TracingExporter = getString(getenv, "TRACING_EXPORTER", cfg.TracingExporter)
	cfg.TracingEndpoint = getString(getenv, "TRACING_ENDPOINT", cfg.TracingEndpoint)
	cfg.TracingSampling = getFloat(getenv, "TRACING_SAMPLING", cfg.TracingSampling)

	return cfg
}

func getString(getenv func(string) string, key, defaultValue string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getInt(getenv func(string) string, key string, defaultValue int) int {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return i
}

func getFloat(getenv func(string) string, key string, defaultValue float64) float64 {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getBool(getenv func(string) string, key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
