// SPDX-License-Identifier: MIT

// Package ratelimit throttles telemetry ingest per tenant and per client
// IP, with a global ceiling protecting the pipeline.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "moodpulse",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"limit_type"},
)

// Config holds rate limiting configuration.
type Config struct {
	// Global ceiling across all tenants.
	GlobalRate  rate.Limit // batches per second
	GlobalBurst int

	// Per-tenant limits.
	PerTenantRate  rate.Limit
	PerTenantBurst int

	// Per-IP limits guard against one misbehaving collector.
	PerIPRate  rate.Limit
	PerIPBurst int

	// CleanupInterval resets the per-key limiter maps.
	CleanupInterval time.Duration
}

// DefaultConfig derives limits from the configured per-tenant batch
// budget (batches per minute).
func DefaultConfig(tenantPerMinute int) Config {
	perTenant := rate.Limit(float64(tenantPerMinute) / 60)
	return Config{
		GlobalRate:  1000,
		GlobalBurst: 2000,

		PerTenantRate:  perTenant,
		PerTenantBurst: tenantPerMinute / 10,

		PerIPRate:  50,
		PerIPBurst: 100,

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages ingest rate limiting.
type Limiter struct {
	config Config

	global    *rate.Limiter
	perTenant map[string]*rate.Limiter
	perIP     map[string]*rate.Limiter
	mu        sync.Mutex

	lastCleanup time.Time
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	if config.PerTenantBurst < 1 {
		config.PerTenantBurst = 1
	}
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perTenant:   make(map[string]*rate.Limiter),
		perIP:       make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether one more batch from (tenantID, clientIP) fits the
// limits.
func (l *Limiter) Allow(tenantID, clientIP string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global").Inc()
		return false
	}
	if !l.keyLimiter(l.perTenant, tenantID, l.config.PerTenantRate, l.config.PerTenantBurst).Allow() {
		rateLimitExceeded.WithLabelValues("per_tenant").Inc()
		return false
	}
	if !l.keyLimiter(l.perIP, clientIP, l.config.PerIPRate, l.config.PerIPBurst).Allow() {
		rateLimitExceeded.WithLabelValues("per_ip").Inc()
		return false
	}
	l.maybeCleanup()
	return true
}

func (l *Limiter) keyLimiter(m map[string]*rate.Limiter, key string, r rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := m[key]
	if !ok {
		lim = rate.NewLimiter(r, burst)
		m[key] = lim
	}
	return lim
}

// maybeCleanup drops all per-key limiters once per cleanup interval so the
// maps cannot grow without bound.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perTenant = make(map[string]*rate.Limiter)
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request, honoring
// reverse-proxy headers.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client.
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			xff = xff[:idx]
		}
		if xff = strings.TrimSpace(xff); xff != "" {
			return xff
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
