// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/config"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/fabric"
	"github.com/moodpulse/moodpulse/internal/health"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/outcome"
	"github.com/moodpulse/moodpulse/internal/pattern"
	"github.com/moodpulse/moodpulse/internal/pipeline"
	"github.com/moodpulse/moodpulse/internal/pulse"
	"github.com/moodpulse/moodpulse/internal/ratelimit"
	"github.com/moodpulse/moodpulse/internal/session"
)

type serverFixture struct {
	server *Server
	router http.Handler
	bus    *bus.MemoryBus
	cancel context.CancelFunc
}

func newFixture(t *testing.T, mutate func(*config.Config)) *serverFixture {
	t.Helper()

	cfg := config.Default()
	cfg.Shards = 2
	cfg.OutcomeLogPath = filepath.Join(t.TempDir(), "outcomes.db")
	if mutate != nil {
		mutate(&cfg)
	}

	b := bus.NewMemoryBus()
	store := session.NewStore(session.Config{
		Shards:      cfg.Shards,
		IdleTimeout: cfg.SessionIdle,
	}, b)
	p := pipeline.New(pipeline.Deps{
		Store:      store,
		Classifier: emotion.NewClassifier(),
		Detector:   pattern.NewDetector(),
		Engine:     intervention.NewEngine(),
		Bus:        b,
	}, pipeline.Config{QueueDepth: 64})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Wait()
		_ = b.Close()
	})

	cold, err := outcome.OpenColdLog(cfg.OutcomeLogPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cold.Close() })

	hm := health.NewManager("test")
	srv := New(cfg, Deps{
		Pipeline: p,
		Limiter:  ratelimit.New(ratelimit.DefaultConfig(cfg.TenantRateLimit)),
		Pulse:    pulse.NewAggregator(),
		Hub:      fabric.NewHub(),
		Health:   hm,
		ColdLog:  cold,
	})
	return &serverFixture{server: srv, router: srv.Routes(), bus: b, cancel: cancel}
}

func telemetryBody(sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"session_id": %q,
		"tenant_id": "t1",
		"url": "https://example.com/pricing",
		"events": [
			{"type": "mousemove", "timestamp": 1700000000000, "data": {"x": 100, "y": 200}}
		]
	}`, sessionID))
}

func TestIngestAccepted(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/telemetry", bytes.NewReader(telemetryBody("s1")))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIngestMalformedJSON(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/telemetry", strings.NewReader("{not json"))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestMissingTenant(t *testing.T) {
	f := newFixture(t, nil)

	body := `{"session_id":"s1","events":[{"type":"click","timestamp":1}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/telemetry", strings.NewReader(body))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestOversizedBatch(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.MaxBatchBytes = 1024
	})

	big := bytes.Repeat([]byte("a"), 2048)
	body := fmt.Sprintf(`{"session_id":"s1","tenant_id":"t1","events":[{"type":"click","timestamp":1,"data":{"target":%q}}]}`, big)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/telemetry", strings.NewReader(body))
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIngestRateLimited(t *testing.T) {
	f := newFixture(t, nil)
	f.server.limiter = ratelimit.New(ratelimit.Config{
		GlobalRate: 1, GlobalBurst: 1,
		PerTenantRate: 1, PerTenantBurst: 1,
		PerIPRate: 1, PerIPBurst: 1,
		CleanupInterval: time.Minute,
	})

	var last int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/telemetry", bytes.NewReader(telemetryBody("s1")))
		f.router.ServeHTTP(rec, req)
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestPulseSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.server.pulse.Observe(emotion.Sample{
		Emotion:    emotion.StickerShock,
		Confidence: 92,
		Timestamp:  time.Now(),
	})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/pulse/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap pulse.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.SampleCount)

	// Dashboard clients key on these field names.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"evi", "emotions", "sample", "ts"} {
		assert.Contains(t, raw, key)
	}
	var evi int
	require.NoError(t, json.Unmarshal(raw["evi"], &evi), "evi is an integer")
	var shares map[string]float64
	require.NoError(t, json.Unmarshal(raw["emotions"], &shares))
	assert.InDelta(t, 1.0, shares[string(emotion.StickerShock)], 1e-9)
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "moodpulse_")
}

func TestOutcomeStatsRequiresTenant(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/outcomes/stats", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutcomeStatsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/outcomes/stats?tenant_id=t1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TenantID string               `json:"tenant_id"`
		Days     []outcome.TenantStats `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.TenantID)
	assert.Empty(t, resp.Days)
}

func TestOutcomeStatsRejectsBadDays(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/outcomes/stats?tenant_id=t1&days=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityHeadersPresent(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest("OPTIONS", "/telemetry", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFilterFromQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws/emotions?tenant_id=t1&emotions=rage,sticker_shock&min_confidence=80&priority_only=true", nil)
	f := filterFromQuery(req)

	assert.Equal(t, "t1", f.TenantID)
	assert.Equal(t, []emotion.Emotion{emotion.Rage, emotion.StickerShock}, f.Emotions)
	assert.Equal(t, 80, f.MinConfidence)
	assert.True(t, f.PriorityOnly)
}
