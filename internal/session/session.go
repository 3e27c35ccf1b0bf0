// SPDX-License-Identifier: MIT

// Package session holds per-visitor state: lifecycle, physics, recent
// events and emotions, and the gating state that throttles interventions.
// Sessions are sharded by ID; the shard's pipeline worker mutates a
// session's behavioral state under the session mutex, and the store takes
// the same mutex when it snapshots a summary. Lock order is always shard
// lock first, session mutex second.
package session

import (
	"sync"
	"time"

	"github.com/moodpulse/moodpulse/internal/emotion"
	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/identity"
	"github.com/moodpulse/moodpulse/internal/intervention"
	"github.com/moodpulse/moodpulse/internal/physics"
)

// State is a session lifecycle phase.
type State string

const (
	StateNew        State = "new"
	StateActive     State = "active"
	StateMuted      State = "muted"
	StateClosing    State = "closing"
	StateTerminated State = "terminated"
)

const (
	eventRingSize   = 50
	emotionRingSize = 50

	// clickLookback matches the pattern detector's "recent events" window.
	clickLookback = 5

	// dedupeWindow absorbs double deliveries from client retries.
	dedupeWindow = 50 * time.Millisecond
)

// Session is one visitor's live record. Exported fields that change after
// creation are mutated by the shard worker inside Update; the store takes
// the same mutex via Summary, so sweeps and close timers never observe a
// half-applied event. Lifecycle metadata (state, last-seen) is guarded by
// the shard lock.
type Session struct {
	mu sync.Mutex

	ID       string
	TenantID string
	URL      string

	CreatedAt time.Time

	Physics    physics.State
	HasPhysics bool

	Profile     identity.Profile
	IdentityKey string

	Cooldowns    emotion.CooldownSet
	Intervention intervention.State

	Muted     bool
	Converted bool

	// Dispatched counts interventions sent over the session's lifetime.
	Dispatched int
	// DollarValue accumulates the signed value of emitted samples.
	DollarValue float64

	events   *ring[events.Event]
	emotions *ring[emotion.Sample]
	recent   *ring[events.Type]

	emotionCounts map[emotion.Emotion]int

	// store-guarded lifecycle metadata
	state        State
	lastSeen     time.Time
	closeOutcome Outcome
}

func newSession(id, tenantID string, now time.Time) *Session {
	return &Session{
		ID:            id,
		TenantID:      tenantID,
		CreatedAt:     now,
		events:        newRing[events.Event](eventRingSize),
		emotions:      newRing[emotion.Sample](emotionRingSize),
		recent:        newRing[events.Type](clickLookback),
		emotionCounts: make(map[emotion.Emotion]int),
		state:         StateNew,
		lastSeen:      now,
	}
}

// Age is the session's lifetime at now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Update runs fn with the session mutex held. All behavioral mutation goes
// through here; fn must not call back into the store, which takes this
// mutex after its shard lock.
func (s *Session) Update(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// IsDuplicate reports whether ev repeats the most recent recorded event
// within the dedupe window.
func (s *Session) IsDuplicate(ev events.Event) bool {
	last, ok := s.events.last()
	return ok && ev.SameAs(last, dedupeWindow)
}

// RecordEvent appends ev to the event ring and the recent-type window.
func (s *Session) RecordEvent(ev events.Event) {
	s.events.push(ev)
	s.recent.push(ev.Type)
}

// RecordEmotion appends a sample and updates the running aggregates.
func (s *Session) RecordEmotion(sample emotion.Sample) {
	s.emotions.push(sample)
	s.emotionCounts[sample.Emotion]++
	s.DollarValue += sample.DollarValue
}

// EmotionHistory returns recent samples oldest first.
func (s *Session) EmotionHistory() []emotion.Sample {
	return s.emotions.items()
}

// LastEmotion returns the newest sample, if any.
func (s *Session) LastEmotion() (emotion.Sample, bool) {
	return s.emotions.last()
}

// RecentClicks counts click events among the last few processed events.
func (s *Session) RecentClicks() int {
	n := 0
	for _, t := range s.recent.items() {
		if t == events.TypeClick || t == events.TypeRageClick {
			n++
		}
	}
	return n
}

// EventCount is the number of events currently retained. The ring drops
// history past its capacity, so this saturates at the ring size.
func (s *Session) EventCount() int { return s.events.len() }

// Summary snapshots the session for its terminal lifecycle event. It takes
// the session mutex so a concurrent worker update cannot tear the snapshot.
func (s *Session) Summary(now time.Time) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[emotion.Emotion]int, len(s.emotionCounts))
	for k, v := range s.emotionCounts {
		counts[k] = v
	}
	sum := Summary{
		StartedAt:     s.CreatedAt,
		EndedAt:       now,
		EventCount:    s.events.len(),
		EmotionCounts: counts,
		Interventions: s.Dispatched,
		DollarValue:   s.DollarValue,
		Converted:     s.Converted,
		UserID:        s.Profile.UserID,
		LTVUSD:        s.Profile.LTVUSD,
	}
	if last, ok := s.emotions.last(); ok {
		sum.LastEmotion = last.Emotion
		sum.LastSection = last.Section
	}
	return sum
}
