// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/fabric"
	"github.com/moodpulse/moodpulse/internal/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware; dashboards
	// and customer pages legitimately connect from other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleDashboardWS upgrades a dashboard connection and attaches it to the
// broadcast hub with the filter taken from query parameters.
func (s *Server) handleDashboardWS(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "fabric")

	filter := filterFromQuery(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("dashboard websocket upgrade failed")
		return
	}
	s.hub.ServeDashboard(conn, filter)
}

// handleSessionWS upgrades a per-session connection used to deliver
// intervention commands back to the page.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "fabric")

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session id")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("session websocket upgrade failed")
		return
	}
	s.hub.ServeSession(sessionID, conn)
}

// filterFromQuery builds a dashboard filter from the request query:
// tenant_id, emotions (comma-separated), min_confidence, priority_only.
func filterFromQuery(r *http.Request) fabric.Filter {
	q := r.URL.Query()
	f := fabric.Filter{
		TenantID: q.Get("tenant_id"),
	}
	if raw := q.Get("emotions"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Emotions = append(f.Emotions, emotion.Emotion(part))
			}
		}
	}
	if raw := q.Get("min_confidence"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			f.MinConfidence = v
		}
	}
	f.PriorityOnly = q.Get("priority_only") == "true"
	return f
}
