// SPDX-License-Identifier: MIT

// Package fabric delivers the live streams to websocket clients: emotion
// and intervention feeds for dashboards, and targeted intervention
// commands for the session's own page.
package fabric

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/moodpulse/moodpulse/internal/bus"
	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/log"
	"github.com/moodpulse/moodpulse/internal/metrics"
)

// Frame kinds sent to dashboard clients.
const (
	FrameEmotion      = "emotional_state"
	FrameIntervention = "intervention"
	FramePong         = "pong"
)

// Inbound dashboard message kinds.
const (
	inboundSubscribe = "subscribe"
	inboundPing      = "ping"
)

// Frame is the envelope for every dashboard delivery.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// subscribeFrame re-targets a connected dashboard. The filter can arrive
// nested under "filter" or with its fields inline next to the type tag.
type subscribeFrame struct {
	Type          string            `json:"type"`
	Tenant        string            `json:"tenant,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
	EmotionFilter []emotion.Emotion `json:"emotion_filter,omitempty"`
	MinConfidence int               `json:"min_confidence,omitempty"`
	PriorityOnly  bool              `json:"priority_only,omitempty"`
	Filter        *Filter           `json:"filter,omitempty"`
}

func (sf subscribeFrame) filter() Filter {
	f := Filter{
		TenantID:      sf.TenantID,
		Emotions:      sf.EmotionFilter,
		MinConfidence: sf.MinConfidence,
		PriorityOnly:  sf.PriorityOnly,
	}
	if sf.Filter != nil {
		f = *sf.Filter
	}
	if f.TenantID == "" {
		f.TenantID = sf.Tenant
	}
	return f
}

// Filter narrows what a dashboard subscription receives. The zero value
// receives everything.
type Filter struct {
	// TenantID restricts the feed to one tenant.
	TenantID string `json:"tenant_id,omitempty"`
	// Emotions, when non-empty, whitelists emotion labels.
	Emotions []emotion.Emotion `json:"emotions,omitempty"`
	// MinConfidence drops emotion samples below the threshold.
	MinConfidence int `json:"min_confidence,omitempty"`
	// PriorityOnly suppresses the emotion feed entirely, leaving
	// interventions.
	PriorityOnly bool `json:"priority_only,omitempty"`
}

func (f Filter) wantsEmotion(s emotion.Sample) bool {
	if f.PriorityOnly {
		return false
	}
	if f.TenantID != "" && f.TenantID != s.TenantID {
		return false
	}
	if s.Confidence < f.MinConfidence {
		return false
	}
	if len(f.Emotions) == 0 {
		return true
	}
	for _, e := range f.Emotions {
		if e == s.Emotion {
			return true
		}
	}
	return false
}

func (f Filter) wantsIntervention(cmd intervention.Command) bool {
	return f.TenantID == "" || f.TenantID == cmd.TenantID
}

// Hub owns all websocket clients and fans the bus topics out to them.
type Hub struct {
	mu         sync.RWMutex
	dashboards map[*client]Filter
	sessions   map[string]*client

	logger zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		dashboards: make(map[*client]Filter),
		sessions:   make(map[string]*client),
		logger:     log.WithComponent("fabric"),
	}
}

// Run consumes the emotion and intervention topics until ctx is done.
func (h *Hub) Run(ctx context.Context, b bus.Bus) error {
	emoSub, err := b.Subscribe(ctx, bus.TopicEmotions)
	if err != nil {
		return err
	}
	defer emoSub.Close()
	ivSub, err := b.Subscribe(ctx, bus.TopicInterventions)
	if err != nil {
		return err
	}
	defer ivSub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-emoSub.C():
			if !ok {
				return nil
			}
			h.broadcastEmotion(msg)
		case msg, ok := <-ivSub.C():
			if !ok {
				return nil
			}
			h.routeIntervention(msg)
		}
	}
}

func (h *Hub) broadcastEmotion(raw bus.Message) {
	var s emotion.Sample
	if err := json.Unmarshal(raw, &s); err != nil {
		h.logger.Warn().Err(err).Msg("dropping malformed emotion sample")
		return
	}
	frame, err := json.Marshal(Frame{Type: FrameEmotion, Data: json.RawMessage(raw)})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, f := range h.dashboards {
		if f.wantsEmotion(s) {
			c.enqueue(frame)
		}
	}
}

func (h *Hub) routeIntervention(raw bus.Message) {
	var cmd intervention.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.logger.Warn().Err(err).Msg("dropping malformed intervention command")
		return
	}
	frame, err := json.Marshal(Frame{Type: FrameIntervention, Data: json.RawMessage(raw)})
	if err != nil {
		return
	}

	h.mu.RLock()
	target := h.sessions[cmd.SessionID]
	for c, f := range h.dashboards {
		if f.wantsIntervention(cmd) {
			c.enqueue(frame)
		}
	}
	h.mu.RUnlock()

	if target == nil {
		// The page is not connected; the command expires undelivered.
		metrics.FabricDeliveriesTotal.WithLabelValues("no_socket").Inc()
		h.logger.Debug().
			Str(log.FieldSessionID, cmd.SessionID).
			Str(log.FieldIntervention, string(cmd.Type)).
			Msg("intervention target not connected")
		return
	}
	if target.enqueue(raw) {
		metrics.FabricDeliveriesTotal.WithLabelValues("sent").Inc()
	} else {
		metrics.FabricDeliveriesTotal.WithLabelValues("dropped").Inc()
	}
}

// DashboardCount reports connected dashboard clients.
func (h *Hub) DashboardCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.dashboards)
}

// SessionCount reports connected session sockets.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) addDashboard(c *client, f Filter) {
	h.mu.Lock()
	h.dashboards[c] = f
	n := len(h.dashboards)
	h.mu.Unlock()
	metrics.FabricDashboards.Set(float64(n))
}

// setFilter replaces a connected dashboard's filter. Broadcasts observe
// the replacement immediately, so a re-subscribe takes effect on the next
// published sample.
func (h *Hub) setFilter(c *client, f Filter) {
	h.mu.Lock()
	if _, ok := h.dashboards[c]; ok {
		h.dashboards[c] = f
	}
	h.mu.Unlock()
}

func (h *Hub) removeDashboard(c *client) {
	h.mu.Lock()
	delete(h.dashboards, c)
	n := len(h.dashboards)
	h.mu.Unlock()
	metrics.FabricDashboards.Set(float64(n))
}

func (h *Hub) addSession(id string, c *client) {
	h.mu.Lock()
	if prev, ok := h.sessions[id]; ok {
		prev.shutdown()
	}
	h.sessions[id] = c
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.FabricSessions.Set(float64(n))
}

func (h *Hub) removeSession(id string, c *client) {
	h.mu.Lock()
	if h.sessions[id] == c {
		delete(h.sessions, id)
	}
	n := len(h.sessions)
	h.mu.Unlock()
	metrics.FabricSessions.Set(float64(n))
}
