// SPDX-License-Identifier: MIT

package emotion

import (
	"strings"

	"github.com/moodpulse/moodpulse/internal/events"
)

// rule is one row of the section table: (section, event, predicate) →
// (emotion, base confidence). Rows are evaluated in order; first hit wins.
type rule struct {
	section    events.Section
	event      events.Type // empty matches any event type
	when       func(Input) bool
	emotion    Emotion
	confidence int
}

// anySection marks rows that apply regardless of page region.
const anySection events.Section = "*"

var sectionRules = buildRules()

func buildRules() []rule {
	rows := []rule{
		// --- pricing ---
		{events.SectionPricing, events.TypeHoverEnd, hoverBetween(1200, 2500), PurchaseIntent, 85},
		{events.SectionPricing, events.TypeHoverEnd, hoverBetween(2500, 6000), PurchaseDeliberation, 80},
		{events.SectionPricing, events.TypeHoverEnd, hoverOver(6000), PriceParalysis, 93},
		{events.SectionPricing, "", func(in Input) bool {
			return in.Physics.MouseRecoil && in.Physics.Velocity > 600
		}, StickerShock, 92},
		{events.SectionPricing, "", func(in Input) bool {
			return in.Physics.Oscillating
		}, TierComparison, 82},
		{events.SectionPricing, events.TypeTextSelection, nil, PriceConsideration, 75},
		{events.SectionPricing, events.TypeTabSwitch, nil, ComparisonShopping, 78},
		{events.SectionPricing, events.TypeMouseExit, nil, AbandonmentIntent, 70},
		{events.SectionPricing, events.TypeClick, targetContains("buy", "cta", "plan", "tier"), StrongPurchaseIntent, 88},
		{events.SectionPricing, "", func(in Input) bool { return in.Physics.SlowRead }, PurchaseDeliberation, 70},

		// --- demo ---
		{events.SectionDemo, "", func(in Input) bool {
			return in.Physics.InteractionCount > 5 && in.Physics.PositiveAcceleration
		}, Delight, 85},
		{events.SectionDemo, events.TypeHoverEnd, hoverOver(3000), Engagement, 75},
		{events.SectionDemo, events.TypeRageClick, nil, Frustration, 85},
		{events.SectionDemo, "", func(in Input) bool { return in.Physics.SlowRead }, Curiosity, 65},

		// --- hero ---
		{events.SectionHero, "", func(in Input) bool {
			return in.Physics.TimeInSectionMS < 2000 && in.Physics.Velocity > 700
		}, ImmediateBounceRisk, 85},
		{events.SectionHero, events.TypeScroll, func(in Input) bool { return in.Physics.AutoScroll }, Browsing, 55},
		{events.SectionHero, "", func(in Input) bool { return in.Physics.SlowRead }, Curiosity, 60},

		// --- testimonials ---
		{events.SectionTestimonials, events.TypeTextSelection, nil, ReferenceChecking, 80},
		{events.SectionTestimonials, events.TypeTabSwitch, nil, ExploringElsewhere, 75},
		{events.SectionTestimonials, events.TypeHoverEnd, hoverOver(2000), TrustHesitation, 72},
		{events.SectionTestimonials, "", func(in Input) bool { return in.Physics.SlowRead }, SeekingValidation, 78},

		// --- contact ---
		{events.SectionContact, events.TypeFormSubmit, nil, SubmissionConfidence, 95},
		{events.SectionContact, events.TypeFieldBlur, func(in Input) bool {
			return in.Event.DurationMS > 8000
		}, FormHesitation, 75},
		{events.SectionContact, events.TypeFieldFocus, nil, Engagement, 65},

		// --- cart ---
		{events.SectionCart, events.TypeHoverEnd, hoverOver(2000), CartHesitation, 80},
		{events.SectionCart, events.TypeTabSwitch, nil, Distracted, 75},
		{events.SectionCart, events.TypeMouseExit, nil, AbandonmentIntent, 78},
		{events.SectionCart, events.TypeClick, targetContains("checkout", "pay"), CheckoutIntent, 85},
		{events.SectionCart, "", func(in Input) bool { return in.Physics.SlowRead }, CartReview, 70},

		// --- checkout ---
		{events.SectionCheckout, events.TypeFormSubmit, nil, SubmissionConfidence, 95},
		{events.SectionCheckout, events.TypeFieldBlur, func(in Input) bool {
			return in.Event.DurationMS > 5000
		}, CheckoutHesitation, 82},
		{events.SectionCheckout, "", func(in Input) bool { return in.Physics.MouseRecoil }, CommitmentAnxiety, 80},
		{events.SectionCheckout, events.TypeClick, targetContains("pay", "place", "order"), CheckoutIntent, 88},
		{events.SectionCheckout, "", func(in Input) bool { return in.Physics.SlowRead }, FinancialAnxiety, 72},
	}

	// Section-independent fallbacks; kept last so specific rows win.
	generic := []rule{
		{anySection, events.TypeRageClick, nil, Frustration, 85},
		{anySection, events.TypeTabSwitch, nil, Distracted, 70},
		{anySection, events.TypeViewportBoundary, nil, AbandonmentIntent, 65},
		{anySection, "", func(in Input) bool { return in.Physics.SlowRead }, DeliberateReading, 60},
	}
	return append(rows, generic...)
}

func hoverBetween(lo, hi float64) func(Input) bool {
	return func(in Input) bool {
		return in.Event.DurationMS >= lo && in.Event.DurationMS <= hi
	}
}

func hoverOver(ms float64) func(Input) bool {
	return func(in Input) bool {
		return in.Event.DurationMS > ms
	}
}

func targetContains(parts ...string) func(Input) bool {
	return func(in Input) bool {
		target := strings.ToLower(in.Event.Target)
		for _, p := range parts {
			if strings.Contains(target, p) {
				return true
			}
		}
		return false
	}
}
