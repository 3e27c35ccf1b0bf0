// SPDX-License-Identifier: MIT

// Package physics computes per-session kinematic state from consecutive
// telemetry events. Update is a pure function: the same event sequence
// always yields bit-identical state.
package physics

import (
	"math"
	"time"

	"github.com/moodpulse/moodpulse/internal/events"
)

const (
	// VelocityHistorySize bounds the velocity ring used for entropy.
	VelocityHistorySize = 10

	// minDT and maxDT clamp the event-to-event wall time.
	minDT = 10 * time.Millisecond
	maxDT = 2000 * time.Millisecond

	// Raw gaps above maxDT reset kinematics instead of interpolating.
	sessionGap = 2 * time.Second

	entropyScale = 1e6

	backForthDistance = 100.0
	oscillationFloor  = 3

	recoilVelocity = 600.0
	recoilRise     = -50.0

	autoScrollRun       = 5
	autoScrollTolerance = 5.0
)

// State is the kinematic record for one session. It is owned by the session
// store; everything else sees copies.
type State struct {
	// Position
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	ScrollY float64 `json:"scroll_y"`

	// Kinematics (velocity/acceleration rounded to 3 decimals, jerk to int)
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Jerk         float64 `json:"jerk"`
	LastVelocity float64 `json:"last_velocity"`

	VelocityHistory [VelocityHistorySize]float64 `json:"velocity_history"`
	historyNext     int
	historyLen      int

	Entropy          float64 `json:"entropy"`
	DirectionChanges int     `json:"direction_changes"`
	BackForth        int     `json:"back_forth"`

	// Flags
	MouseGone            bool `json:"mouse_gone"`
	MouseRecoil          bool `json:"mouse_recoil"`
	SlowRead             bool `json:"slow_read"`
	PositiveAcceleration bool `json:"positive_acceleration"`
	HoveringPricing      bool `json:"hovering_pricing"`
	Oscillating          bool `json:"oscillating"`
	AutoScroll           bool `json:"auto_scroll"`

	// Counters
	InteractionCount int     `json:"interaction_count"`
	HoverCount       int     `json:"hover_count"`
	HoverDurationMS  float64 `json:"hover_duration_ms"`
	TimeInSectionMS  float64 `json:"time_in_section_ms"`

	// Section tracking
	Section      events.Section `json:"section"`
	SectionStart time.Time      `json:"section_start"`

	LastEventAt time.Time `json:"last_event_at"`

	lastDX, lastDY float64
	scrollRun      int
}

// NewState returns the initial physics for a session whose first event is ev.
func NewState(ev events.Event) State {
	s := State{
		Section:      ev.Section,
		SectionStart: ev.Timestamp,
		LastEventAt:  ev.Timestamp,
	}
	if ev.Motion != nil {
		s.X, s.Y, s.ScrollY = ev.Motion.X, ev.Motion.Y, ev.Motion.ScrollY
	}
	return s
}

// Update derives the next physics state from prev and ev. It never mutates
// prev and performs no I/O.
func Update(prev State, ev events.Event) State {
	s := prev

	rawDT := ev.Timestamp.Sub(prev.LastEventAt)
	s.LastEventAt = ev.Timestamp

	if ev.Section != prev.Section && ev.Section != "" {
		s.Section = ev.Section
		s.SectionStart = ev.Timestamp
		s.TimeInSectionMS = 0
		s.HoveringPricing = false
	} else if !s.SectionStart.IsZero() {
		s.TimeInSectionMS = float64(ev.Timestamp.Sub(s.SectionStart).Milliseconds())
	}

	if rawDT < 0 {
		// Out-of-order or clock-skewed event: treat as an invariant
		// violation and reset kinematics rather than produce negative dt.
		return resetKinematics(s, ev)
	}
	if rawDT > sessionGap {
		return resetKinematics(s, ev)
	}

	s = applyFlags(s, ev)

	if ev.Motion == nil {
		return s
	}

	dt := clampDT(rawDT).Seconds()
	dx := ev.Motion.X - prev.X
	dy := ev.Motion.Y - prev.Y
	if ev.Type == events.TypeScroll {
		dy = ev.Motion.ScrollY - prev.ScrollY
	}

	velocity := math.Hypot(dx, dy) / dt
	acceleration := (velocity - prev.Velocity) / dt
	jerk := (acceleration - prev.Acceleration) / dt

	s.LastVelocity = prev.Velocity
	s.Velocity = round3(velocity)
	s.Acceleration = round3(acceleration)
	s.Jerk = math.Round(jerk)

	s.X, s.Y = ev.Motion.X, ev.Motion.Y
	s.ScrollY = ev.Motion.ScrollY

	s = pushVelocity(s, s.Velocity)
	s.Entropy = entropy(s)

	if signFlip(dx, prev.lastDX) || signFlip(dy, prev.lastDY) {
		s.DirectionChanges++
	}
	if math.Abs(dx) > backForthDistance && signFlip(dx, prev.lastDX) {
		s.BackForth++
	}
	s.Oscillating = s.BackForth >= oscillationFloor
	if dx != 0 {
		s.lastDX = dx
	}
	if dy != 0 {
		s.lastDY = dy
	}

	s.MouseRecoil = s.Velocity > recoilVelocity && dy < recoilRise
	s.SlowRead = s.Velocity > 10 && s.Velocity < 100
	s.PositiveAcceleration = s.Acceleration > 100 && s.Acceleration < 500 && s.Velocity < 500

	if ev.Type == events.TypeScroll {
		if math.Abs(s.Velocity-prev.Velocity) < autoScrollTolerance {
			s.scrollRun++
		} else {
			s.scrollRun = 1
		}
		s.AutoScroll = s.scrollRun >= autoScrollRun
	} else {
		s.scrollRun = 0
		s.AutoScroll = false
	}

	return s
}

func applyFlags(s State, ev events.Event) State {
	switch ev.Type {
	case events.TypeMouseExit:
		s.MouseGone = true
	case events.TypeMouseReturn:
		s.MouseGone = false
	case events.TypeHoverStart:
		s.HoverCount++
		s.InteractionCount++
		s.HoveringPricing = ev.Section == events.SectionPricing
	case events.TypeHoverEnd:
		s.HoverDurationMS += ev.DurationMS
		s.HoveringPricing = false
	case events.TypeClick, events.TypeRageClick, events.TypeScroll,
		events.TypeTextSelection, events.TypeFieldFocus, events.TypeFormSubmit:
		s.InteractionCount++
	}
	if ev.Interactions != nil {
		// Collector-aggregated counters are authoritative when present.
		if ev.Interactions.Clicks+ev.Interactions.Hovers+ev.Interactions.Scrolls > s.InteractionCount {
			s.InteractionCount = ev.Interactions.Clicks + ev.Interactions.Hovers + ev.Interactions.Scrolls
		}
	}
	return s
}

func resetKinematics(s State, ev events.Event) State {
	s = applyFlags(s, ev)
	s.Velocity = 0
	s.Acceleration = 0
	s.Jerk = 0
	s.LastVelocity = 0
	s.MouseRecoil = false
	s.SlowRead = false
	s.PositiveAcceleration = false
	s.AutoScroll = false
	s.scrollRun = 0
	if ev.Motion != nil {
		s.X, s.Y, s.ScrollY = ev.Motion.X, ev.Motion.Y, ev.Motion.ScrollY
	}
	return s
}

// Reset zeroes the kinematic scalars in place. Used by the pipeline when an
// invariant violation (NaN, negative dt) is detected.
func Reset(s State) State {
	s.Velocity = 0
	s.Acceleration = 0
	s.Jerk = 0
	s.LastVelocity = 0
	s.Entropy = 0
	return s
}

// Valid reports whether the state is free of NaN/Inf scalars.
func Valid(s State) bool {
	for _, v := range []float64{s.Velocity, s.Acceleration, s.Jerk, s.Entropy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clampDT(dt time.Duration) time.Duration {
	if dt < minDT {
		return minDT
	}
	if dt > maxDT {
		return maxDT
	}
	return dt
}

func pushVelocity(s State, v float64) State {
	s.VelocityHistory[s.historyNext] = v
	s.historyNext = (s.historyNext + 1) % VelocityHistorySize
	if s.historyLen < VelocityHistorySize {
		s.historyLen++
	}
	return s
}

// entropy is the normalized variance of the velocity history, in [0,1].
func entropy(s State) float64 {
	if s.historyLen < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < s.historyLen; i++ {
		sum += s.VelocityHistory[i]
	}
	mean := sum / float64(s.historyLen)
	var variance float64
	for i := 0; i < s.historyLen; i++ {
		d := s.VelocityHistory[i] - mean
		variance += d * d
	}
	variance /= float64(s.historyLen)
	return math.Min(1, variance/entropyScale)
}

func signFlip(cur, last float64) bool {
	return (cur > 0 && last < 0) || (cur < 0 && last > 0)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
