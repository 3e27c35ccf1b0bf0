// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"

	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/outcome"
)

const (
	statsDefaultDays = 30
	statsMaxDays     = 365
)

// handleOutcomeStats serves the per-tenant daily outcome rollup from the
// cold log.
func (s *Server) handleOutcomeStats(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "outcome-stats")

	if s.cold == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "outcome log unavailable")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing tenant_id")
		return
	}

	days := statsDefaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > statsMaxDays {
			writeJSONError(w, http.StatusBadRequest, "days must be in [1,365]")
			return
		}
		days = v
	}

	stats, err := s.cold.StatsByTenant(tenantID, days)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldTenantID, tenantID).Msg("outcome stats query failed")
		writeJSONError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	if stats == nil {
		stats = []outcome.TenantStats{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"days":      stats,
	})
}
