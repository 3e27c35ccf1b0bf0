// SPDX-License-Identifier: MIT

package physics

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodpulse/moodpulse/internal/events"
)

func moveAt(t0 time.Time, offset time.Duration, x, y float64) events.Event {
	return events.Event{
		SessionID: "s1",
		Type:      events.TypeMouseMove,
		Timestamp: t0.Add(offset),
		Section:   events.SectionOther,
		Motion:    &events.Motion{X: x, Y: y},
	}
}

func TestVelocityFromConsecutivePositions(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, 100*time.Millisecond, 30, 40))

	// hypot(30,40)=50px over 0.1s = 500 px/s
	assert.Equal(t, 500.0, s.Velocity)
	assert.Zero(t, s.LastVelocity, "previous velocity was zero on the first sample")
}

func TestAccelerationAndJerk(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, 100*time.Millisecond, 0, 10)) // v=100
	require.Equal(t, 100.0, s.Velocity)

	s = Update(s, moveAt(t0, 200*time.Millisecond, 0, 40)) // v=300, a=(300-100)/0.1=2000
	assert.Equal(t, 300.0, s.Velocity)
	assert.Equal(t, 2000.0, s.Acceleration)
	assert.Equal(t, 100.0, s.LastVelocity)
	// jerk = (2000 - 0) / 0.1 = 20000, rounded to integer
	assert.Equal(t, 20000.0, s.Jerk)
}

func TestDTClampFloor(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	// 2ms raw dt clamps to 10ms: 10px / 0.01s = 1000 px/s
	s = Update(s, moveAt(t0, 2*time.Millisecond, 0, 10))
	assert.Equal(t, 1000.0, s.Velocity)
}

func TestSessionGapResetsKinematics(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, 100*time.Millisecond, 100, 0))
	require.NotZero(t, s.Velocity)

	s = Update(s, moveAt(t0, 3*time.Second, 500, 500))
	assert.Zero(t, s.Velocity)
	assert.Zero(t, s.Acceleration)
	assert.Zero(t, s.Jerk)
	// Position still advances to the new point.
	assert.Equal(t, 500.0, s.X)
}

func TestNegativeDTResets(t *testing.T) {
	t0 := time.UnixMilli(10_000)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, 100*time.Millisecond, 50, 0))
	require.NotZero(t, s.Velocity)

	s = Update(s, moveAt(t0, -time.Second, 60, 0))
	assert.Zero(t, s.Velocity)
}

func TestDeterministicReplay(t *testing.T) {
	t0 := time.UnixMilli(0)
	seq := []events.Event{
		moveAt(t0, 0, 0, 0),
		moveAt(t0, 50*time.Millisecond, 20, 5),
		moveAt(t0, 120*time.Millisecond, -40, 30),
		moveAt(t0, 180*time.Millisecond, 90, -20),
		{SessionID: "s1", Type: events.TypeScroll, Timestamp: t0.Add(250 * time.Millisecond),
			Section: events.SectionOther, Motion: &events.Motion{X: 90, Y: -20, ScrollY: 300}},
		moveAt(t0, 400*time.Millisecond, -150, 10),
	}

	replay := func() State {
		s := NewState(seq[0])
		for _, ev := range seq[1:] {
			s = Update(s, ev)
		}
		return s
	}

	a, b := replay(), replay()
	if diff := cmp.Diff(a, b, cmpopts.EquateComparable(), cmp.AllowUnexported(State{})); diff != "" {
		t.Fatalf("replay diverged (-first +second):\n%s", diff)
	}
}

func TestDirectionChangeAndBackForth(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, 100*time.Millisecond, 150, 0))  // dx=+150
	s = Update(s, moveAt(t0, 200*time.Millisecond, 0, 0))    // dx=-150: flip, |dx|>100
	s = Update(s, moveAt(t0, 300*time.Millisecond, 150, 0))  // flip again
	s = Update(s, moveAt(t0, 400*time.Millisecond, 0, 0))    // third flip

	assert.Equal(t, 3, s.DirectionChanges)
	assert.Equal(t, 3, s.BackForth)
	assert.True(t, s.Oscillating)
}

func TestMouseRecoilFlag(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 200, 500))
	// dy=-60 over 85ms: velocity ~705 px/s upward
	s = Update(s, moveAt(t0, 85*time.Millisecond, 200, 440))
	assert.True(t, s.MouseRecoil)
	assert.Greater(t, s.Velocity, 600.0)
}

func TestSlowReadAndPositiveAcceleration(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, moveAt(t0, time.Second, 0, 50)) // 50 px/s
	assert.True(t, s.SlowRead)

	s2 := NewState(moveAt(t0, 0, 0, 0))
	s2 = Update(s2, moveAt(t0, time.Second, 0, 100)) // v=100
	s2 = Update(s2, moveAt(t0, 2*time.Second, 0, 500)) // v=400, a=300
	assert.True(t, s2.PositiveAcceleration)
	assert.False(t, s2.SlowRead)
}

func TestMouseGoneFlag(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, events.Event{Type: events.TypeMouseExit, Timestamp: t0.Add(100 * time.Millisecond)})
	assert.True(t, s.MouseGone)
	s = Update(s, events.Event{Type: events.TypeMouseReturn, Timestamp: t0.Add(200 * time.Millisecond)})
	assert.False(t, s.MouseGone)
}

func TestHoverTracking(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	s = Update(s, events.Event{
		Type: events.TypeHoverStart, Timestamp: t0.Add(100 * time.Millisecond),
		Section: events.SectionPricing,
	})
	assert.True(t, s.HoveringPricing)
	assert.Equal(t, 1, s.HoverCount)

	s = Update(s, events.Event{
		Type: events.TypeHoverEnd, Timestamp: t0.Add(1500 * time.Millisecond),
		Section: events.SectionPricing, DurationMS: 1400,
	})
	assert.False(t, s.HoveringPricing)
	assert.Equal(t, 1400.0, s.HoverDurationMS)
}

func TestSectionChangeResetsDwell(t *testing.T) {
	t0 := time.UnixMilli(0)
	first := moveAt(t0, 0, 0, 0)
	first.Section = events.SectionHero
	s := NewState(first)

	next := moveAt(t0, 1500*time.Millisecond, 10, 10)
	next.Section = events.SectionHero
	s = Update(s, next)
	assert.Equal(t, 1500.0, s.TimeInSectionMS)

	moved := moveAt(t0, 2000*time.Millisecond, 20, 20)
	moved.Section = events.SectionPricing
	s = Update(s, moved)
	assert.Equal(t, events.SectionPricing, s.Section)
	assert.Zero(t, s.TimeInSectionMS)
}

func TestEntropyBounded(t *testing.T) {
	t0 := time.UnixMilli(0)
	s := NewState(moveAt(t0, 0, 0, 0))
	xs := []float64{0, 900, 5, 1200, 3, 1500, 8, 2000, 2, 1800}
	for i, x := range xs {
		s = Update(s, moveAt(t0, time.Duration(i+1)*100*time.Millisecond, x, 0))
	}
	assert.GreaterOrEqual(t, s.Entropy, 0.0)
	assert.LessOrEqual(t, s.Entropy, 1.0)
	assert.Greater(t, s.Entropy, 0.5, "wildly varying velocity should read as high entropy")
}

func TestValid(t *testing.T) {
	s := State{Velocity: 1, Acceleration: 2, Jerk: 3}
	assert.True(t, Valid(s))
	s.Velocity = 0
	s.Acceleration = 0
	assert.True(t, Valid(Reset(s)))
}
