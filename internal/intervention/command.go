// SPDX-License-Identifier: MIT

// Package intervention decides whether a detected pattern becomes a
// client-visible intervention, and shapes the dispatched command. All
// gating state is per-session and mutated only by that session's worker.
package intervention

import (
	"time"

	"github.com/google/uuid"

	"github.com/moodpulse/moodpulse/internal/pattern"
)

// Command is the wire-level intervention instruction delivered to the
// session's page over the broadcast fabric.
type Command struct {
	ID           string               `json:"id"`
	SessionID    string               `json:"session_id"`
	TenantID     string               `json:"tenant_id"`
	Type         pattern.Intervention `json:"intervention_type"`
	PayloadHint  string               `json:"payload_hint,omitempty"`
	Priority     pattern.Priority     `json:"priority"`
	Pattern      pattern.Pattern      `json:"pattern"`
	TTLMS        int64                `json:"ttl_ms"`
	IssuedAt     time.Time            `json:"issued_at"`
}

// payloadHints suggest a rendering strategy to the client. The client owns
// presentation; the hint is advisory.
var payloadHints = map[pattern.Intervention]string{
	pattern.CartSaveModal:        "offer_discount",
	pattern.ReassuranceMessaging: "show_guarantee",
	pattern.SocialProof:          "show_testimonials",
	pattern.GuaranteeHighlight:   "money_back",
	pattern.TierGuidance:         "recommend_tier",
	pattern.HelpOffer:            "open_chat",
	pattern.ValueProposition:     "show_roi",
	pattern.ExitIntentModal:      "exit_survey",
}

const (
	criticalTTL = 10 * time.Second
	highTTL     = 30 * time.Second
)

func newCommand(sessionID, tenantID string, d pattern.Detection, prio pattern.Priority, now time.Time) Command {
	ttl := highTTL
	if prio == pattern.PriorityCritical {
		ttl = criticalTTL
	}
	return Command{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		TenantID:    tenantID,
		Type:        d.Intervention,
		PayloadHint: payloadHints[d.Intervention],
		Priority:    prio,
		Pattern:     d.Pattern,
		TTLMS:       ttl.Milliseconds(),
		IssuedAt:    now,
	}
}
