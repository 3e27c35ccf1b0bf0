// SPDX-License-Identifier: MIT

// Command moodpulsed runs the moodpulse real-time emotion engine: it
// ingests behavioral telemetry batches, classifies emotional states per
// session, dispatches interventions and records session outcomes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moodpulse/moodpulse/internal/api"
	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/config"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/fabric"
	"github.com/moodpulse/moodpulse/internal/health"
	"github.com/moodpulse/moodpulse/internal/identity"
	"github.com/moodpulse/moodpulse/internal/intervention"
	mplog "github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/outcome"
	"github.com/moodpulse/moodpulse/internal/pattern"
	"github.com/moodpulse/moodpulse/internal/pipeline"
	"github.com/moodpulse/moodpulse/internal/pulse"
	"github.com/moodpulse/moodpulse/internal/ratelimit"
	"github.com/moodpulse/moodpulse/internal/session"
	"github.com/moodpulse/moodpulse/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

// sysexits-style exit codes so operators can tell misconfiguration from
// missing dependencies.
const (
	exitConfig      = 64 // EX_USAGE: invalid configuration
	exitUnavailable = 69 // EX_UNAVAILABLE: required dependency unreachable
	exitIOErr       = 74 // EX_IOERR: data directories or identity store not usable
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
	// activeSessionAlarm degrades readiness when one node carries more
	// live sessions than the memory budget assumes.
	activeSessionAlarm = 200_000
)

func main() {
	os.Exit(run())
}

func run() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return 0
	}

	cfg, err := config.NewLoader(*configPath, version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moodpulsed: invalid configuration: %v\n", err)
		return exitConfig
	}

	mplog.Configure(mplog.Config{
		Level:   cfg.LogLevel,
		Service: "moodpulse",
		Version: version,
	})
	logger := mplog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background components run on their own context so the drain sequence
	// can flush terminal session summaries after the signal arrives.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Int("shards", cfg.Shards).
		Msg("starting moodpulse")

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Error().Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return exitIOErr
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    "moodpulse",
		ServiceVersion: version,
		ExporterType:   cfg.TracingExporter,
		Endpoint:       cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSampling,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize tracing")
		return exitUnavailable
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	// Event bus: redis fan-out when configured, in-process otherwise.
	eventBus, err := bus.New(ctx, cfg.BusURL)
	if err != nil {
		logger.Error().Err(err).Str("event", "bus.connect_failed").Msg("event bus unreachable")
		return exitUnavailable
	}
	defer func() { _ = eventBus.Close() }()

	// Identity resolver is optional; without it every visitor is anonymous.
	var resolver *identity.Resolver
	if cfg.IdentityStoreURL != "" {
		resolver, err = identity.NewResolver(ctx, cfg.IdentityStoreURL)
		if err != nil {
			if cfg.IdentityRequired {
				logger.Error().Err(err).Str("event", "identity.connect_failed").Msg("identity store unreachable")
				return exitIOErr
			}
			logger.Warn().Err(err).Msg("identity store unreachable, sessions resolve as anonymous")
			resolver = nil
		}
	}

	snapshots, err := outcome.OpenSnapshotStore(cfg.OutcomeSnapshotDir)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open outcome snapshot store")
		return exitIOErr
	}
	defer func() { _ = snapshots.Close() }()

	cold, err := outcome.OpenColdLog(cfg.OutcomeLogPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open outcome cold log")
		return exitIOErr
	}
	defer func() { _ = cold.Close() }()

	store := session.NewStore(session.Config{
		Shards:      cfg.Shards,
		IdleTimeout: cfg.SessionIdle,
	}, eventBus)

	pipe := pipeline.New(pipeline.Deps{
		Store:      store,
		Classifier: emotion.NewClassifier(),
		Detector:   pattern.NewDetector(),
		Engine:     intervention.NewEngine(),
		Resolver:   resolver,
		Bus:        eventBus,
	}, pipeline.Config{QueueDepth: cfg.MaxSessionQueue})
	pipe.Start(appCtx)

	aggregator := pulse.NewAggregator()
	go func() {
		if err := aggregator.Run(appCtx, eventBus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("pulse aggregator stopped")
		}
	}()

	hub := fabric.NewHub()
	go func() {
		if err := hub.Run(appCtx, eventBus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("broadcast hub stopped")
		}
	}()

	recorder := outcome.NewRecorder(snapshots, cold)
	go func() {
		if err := recorder.Run(appCtx, eventBus); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("outcome recorder stopped")
		}
	}()

	go store.RunSweeper(appCtx, sweepInterval)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewGaugeChecker("sessions", store.Len, activeSessionAlarm))
	if pinger, ok := eventBus.(interface{ Ping(context.Context) error }); ok {
		hm.RegisterChecker(health.NewPingChecker("bus", pinger.Ping))
	}
	if resolver != nil {
		hm.RegisterChecker(health.NewPingChecker("identity", resolver.Healthy))
	}

	server := api.New(cfg, api.Deps{
		Pipeline: pipe,
		Limiter:  ratelimit.New(ratelimit.DefaultConfig(cfg.TenantRateLimit)),
		Pulse:    aggregator,
		Hub:      hub,
		Health:   hm,
		ColdLog:  cold,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if cfg.TLSCertPath != "" {
			serveErr <- httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Str("event", "shutdown").Msg("signal received, draining")
	case err := <-serveErr:
		logger.Error().Err(err).Msg("HTTP server failed")
		return exitUnavailable
	}

	// Stop accepting work, then flush: terminate all sessions so their
	// summaries reach the recorder, then stop the background components.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	store.Shutdown()
	// Give the recorder a moment to absorb the terminal summaries before
	// its subscription is torn down.
	time.Sleep(200 * time.Millisecond)
	appCancel()
	pipe.Wait()

	logger.Info().Msg("moodpulse exiting")
	return 0
}
