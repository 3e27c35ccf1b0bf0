// SPDX-License-Identifier: MIT

package session

import (
	"time"

	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/events"
)

// Outcome labels why a session ended.
type Outcome string

const (
	OutcomeEnded       Outcome = "ended"
	OutcomeIdleTimeout Outcome = "idle_timeout"
	OutcomeConverted   Outcome = "converted"
	OutcomeShutdown    Outcome = "shutdown"
)

// Summary is the terminal snapshot of a session, carried on the lifecycle
// topic and persisted by the outcome recorder.
type Summary struct {
	StartedAt     time.Time               `json:"started_at"`
	EndedAt       time.Time               `json:"ended_at"`
	EventCount    int                     `json:"event_count"`
	EmotionCounts map[emotion.Emotion]int `json:"emotion_counts"`
	Interventions int                     `json:"interventions"`
	DollarValue   float64                 `json:"dollar_value"`
	Converted     bool                    `json:"converted"`
	LastEmotion   emotion.Emotion         `json:"last_emotion,omitempty"`
	LastSection   events.Section          `json:"last_section,omitempty"`
	UserID        string                  `json:"user_id,omitempty"`
	LTVUSD        float64                 `json:"ltv_usd,omitempty"`
}

// LifecycleEvent announces a session state transition on the bus.
type LifecycleEvent struct {
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	OldState  State     `json:"old_state"`
	NewState  State     `json:"new_state"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	At        time.Time `json:"at"`
	// Summary is set only on transitions into StateTerminated.
	Summary *Summary `json:"summary,omitempty"`
}
