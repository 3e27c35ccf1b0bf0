// SPDX-License-Identifier: MIT

package emotion

import (
	"time"

	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/physics"
)

// Input is everything the classifier consults. It is assembled by the
// pipeline worker from read-only snapshots.
type Input struct {
	Physics    physics.State
	Event      events.Event
	Section    events.Section
	SessionAge time.Duration
}

// Result is a non-null classification.
type Result struct {
	Emotion    Emotion
	Confidence int
	Scores     map[Emotion]int
}

// Early-session damping boundaries. Taken from the legacy collector's
// tuning; configuration rather than invariants.
const (
	earlyDampCutoff = 5 * time.Second
	midDampCutoff   = 15 * time.Second
	midDampCap      = 40
	midDampPenalty  = 20
)

// Classifier evaluates the three-tier rule set. It holds only immutable
// rule tables and is safe for concurrent use.
type Classifier struct {
	rules []rule
}

// NewClassifier builds a classifier with the built-in rule table.
func NewClassifier() *Classifier {
	return &Classifier{rules: sectionRules}
}

// Classify maps the input to an emotion with confidence, or reports
// ok=false when no rule fires. Equal inputs yield equal outputs.
func (c *Classifier) Classify(in Input) (Result, bool) {
	// Tier 1: universal high-confidence overrides, independent of section.
	if r, ok := universalOverride(in); ok {
		return c.damp(in, r), true
	}

	// Tier 3 rows are evaluated under the Tier 2 dampener.
	for _, rule := range c.rules {
		if rule.section != anySection && rule.section != in.Section {
			continue
		}
		if rule.event != "" && rule.event != in.Event.Type {
			continue
		}
		if rule.when != nil && !rule.when(in) {
			continue
		}
		return c.damp(in, Result{Emotion: rule.emotion, Confidence: rule.confidence}), true
	}

	return Result{}, false
}

func universalOverride(in Input) (Result, bool) {
	p := in.Physics
	switch {
	case p.Velocity > 800 && p.Acceleration > 500:
		return Result{Emotion: Rage, Confidence: 95}, true
	case p.MouseGone && p.LastVelocity > 1000:
		return Result{Emotion: AbandonmentRisk, Confidence: 90}, true
	case p.DirectionChanges >= 3 && p.Entropy > 0.7:
		return Result{Emotion: Confusion, Confidence: 80}, true
	}
	return Result{}, false
}

// damp applies the early-session dampener (Tier 2). Sessions younger than
// 5s cannot express price-related emotions at all; sessions younger than
// 15s express them only weakly.
func (c *Classifier) damp(in Input, r Result) Result {
	if !PriceRelated(r.Emotion) {
		return r
	}
	switch {
	case in.SessionAge < earlyDampCutoff:
		if in.Physics.InteractionCount > 0 {
			return Result{Emotion: Exploring, Confidence: 60}
		}
		return Result{Emotion: Browsing, Confidence: 55}
	case in.SessionAge < midDampCutoff:
		conf := r.Confidence
		if conf > midDampCap {
			conf = midDampCap
		}
		conf -= midDampPenalty
		if conf < 0 {
			conf = 0
		}
		return Result{Emotion: r.Emotion, Confidence: conf}
	}
	return r
}
