// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
	"github.com/moodpulse/moodpulse/internal/ratelimit"
)

// handleIngest accepts one telemetry batch. The handler acknowledges with
// 204 as soon as the batch is queued; classification happens on the shard
// workers, never on the request path.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "ingest")

	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxBatchBytes))

	var batch events.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			metrics.IncIngestBatch("oversized")
			writeJSONError(w, http.StatusRequestEntityTooLarge, "batch exceeds size limit")
			return
		}
		metrics.IncIngestBatch("rejected")
		writeJSONError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if err := batch.Validate(); err != nil {
		metrics.IncIngestBatch("rejected")
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.limiter != nil && !s.limiter.Allow(batch.TenantID, ratelimit.GetClientIP(r)) {
		metrics.IncIngestBatch("rate_limited")
		w.Header().Set("Retry-After", "60")
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	res := batch.Normalize()
	for i := 0; i < res.Unknown; i++ {
		metrics.IncIngestEvent("unknown_type")
	}
	for i := 0; i < res.Invalid; i++ {
		metrics.IncIngestEvent("invalid")
	}
	if len(res.Events) > 0 {
		s.pipeline.EnqueueBatch(batch, res.Events)
	}
	metrics.IncIngestBatch("accepted")

	if res.Unknown > 0 || res.Invalid > 0 {
		logger.Debug().
			Str("session_id", batch.SessionID).
			Int("unknown", res.Unknown).
			Int("invalid", res.Invalid).
			Msg("batch contained discarded events")
	}

	w.WriteHeader(http.StatusNoContent)
}
