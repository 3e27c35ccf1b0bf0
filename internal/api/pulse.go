// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/moodpulse/moodpulse/internal/log"
)

const (
	pulseStreamInterval  = 2 * time.Second
	pulseStreamHeartbeat = 15 * time.Second
)

// handlePulseSnapshot returns the current tenant-wide emotional aggregate.
func (s *Server) handlePulseSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pulse.Snapshot())
}

// handlePulseStream streams pulse snapshots as server-sent events. Each
// snapshot goes out as one `data:` frame; a comment line keeps idle
// connections alive through proxies.
func (s *Server) handlePulseStream(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "pulse-stream")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(pulseStreamInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(pulseStreamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Msg("pulse stream client disconnected")
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			payload, err := json.Marshal(s.pulse.Snapshot())
			if err != nil {
				logger.Error().Err(err).Msg("failed to encode pulse snapshot")
				continue
			}
			if _, err := w.Write([]byte("event: pulse\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
