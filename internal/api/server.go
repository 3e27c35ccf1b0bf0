// SPDX-License-Identifier: MIT

// Package api implements the moodpulse HTTP surface: telemetry ingest,
// pulse aggregates, live WebSocket feeds and operational probes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moodpulse/moodpulse/internal/api/middleware"
	"github.com/moodpulse/moodpulse/internal/config"
	"github.com/moodpulse/moodpulse/internal/fabric"
	"github.com/moodpulse/moodpulse/internal/health"
	"github.com/moodpulse/moodpulse/internal/outcome"
	"github.com/moodpulse/moodpulse/internal/pipeline"
	"github.com/moodpulse/moodpulse/internal/pulse"
	"github.com/moodpulse/moodpulse/internal/ratelimit"
)

// Server wires the HTTP handlers to the processing pipeline.
type Server struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	limiter  *ratelimit.Limiter
	pulse    *pulse.Aggregator
	hub      *fabric.Hub
	health   *health.Manager
	cold     *outcome.ColdLog
}

// Deps carries the constructed components the server serves.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Limiter  *ratelimit.Limiter
	Pulse    *pulse.Aggregator
	Hub      *fabric.Hub
	Health   *health.Manager
	ColdLog  *outcome.ColdLog
}

// New creates the API server.
func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: deps.Pipeline,
		limiter:  deps.Limiter,
		pulse:    deps.Pulse,
		hub:      deps.Hub,
		health:   deps.Health,
		cold:     deps.ColdLog,
	}
}

// Routes builds the router with the canonical middleware stack.
func (s *Server) Routes() *chi.Mux {
	tracingService := ""
	if s.cfg.TracingEnabled {
		tracingService = "moodpulse-api"
	}
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		EnableSecurityHeaders: true,
		EnableMetrics:         s.cfg.MetricsEnabled,
		TracingService:        tracingService,
		EnableLogging:         true,
	})

	r.Post("/telemetry", s.handleIngest)

	r.Get("/pulse/snapshot", s.handlePulseSnapshot)
	r.Get("/pulse/stream", s.handlePulseStream)

	r.Get("/ws/emotions", s.handleDashboardWS)
	r.Get("/ws/session/{sessionID}", s.handleSessionWS)

	r.With(middleware.StatsRateLimit()).Get("/outcomes/stats", s.handleOutcomeStats)

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
