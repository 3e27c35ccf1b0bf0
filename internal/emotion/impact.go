// SPDX-License-Identifier: MIT

package emotion

import (
	"math"

	"github.com/moodpulse/moodpulse/internal/events"
)

// sectionImpact holds the signed revenue-impact fraction per
// (section, emotion). Values are in [-1, +1]; emotions absent from a
// section's map contribute nothing.
var sectionImpact = map[events.Section]map[Emotion]float64{
	events.SectionPricing: {
		StrongPurchaseIntent: +0.9,
		PurchaseIntent:       +0.6,
		TierComparison:       +0.3,
		PriceConsideration:   +0.2,
		PurchaseDeliberation: +0.1,
		PriceParalysis:       -0.5,
		StickerShock:         -0.7,
		FinancialAnxiety:     -0.6,
		ComparisonShopping:   -0.3,
		AbandonmentIntent:    -0.8,
	},
	events.SectionCart: {
		CheckoutIntent:    +0.8,
		CartReview:        +0.2,
		CartHesitation:    -0.4,
		Distracted:        -0.5,
		AbandonmentIntent: -0.9,
	},
	events.SectionCheckout: {
		CheckoutIntent:       +0.9,
		SubmissionConfidence: +1.0,
		CheckoutHesitation:   -0.6,
		CommitmentAnxiety:    -0.7,
		FinancialAnxiety:     -0.7,
		AbandonmentIntent:    -1.0,
	},
	events.SectionDemo: {
		Delight:     +0.5,
		Engagement:  +0.3,
		Frustration: -0.4,
	},
	events.SectionHero: {
		ImmediateBounceRisk: -0.4,
		Curiosity:           +0.1,
	},
	events.SectionTestimonials: {
		SeekingValidation:  +0.2,
		ReferenceChecking:  +0.2,
		TrustHesitation:    -0.3,
		ExploringElsewhere: -0.4,
	},
	events.SectionContact: {
		SubmissionConfidence: +0.8,
		FormHesitation:       -0.3,
	},
}

// universalImpact applies when the section table has no entry.
var universalImpact = map[Emotion]float64{
	Rage:            -0.8,
	AbandonmentRisk: -0.7,
	Confusion:       -0.3,
	Frustration:     -0.4,
}

// ImpactFraction returns the signed impact fraction for (section, emotion),
// bounded to [-1, +1].
func ImpactFraction(section events.Section, e Emotion) float64 {
	if m, ok := sectionImpact[section]; ok {
		if f, ok := m[e]; ok {
			return clampFraction(f)
		}
	}
	if f, ok := universalImpact[e]; ok {
		return clampFraction(f)
	}
	return 0
}

// DollarValue converts an emotion observation into a signed dollar figure:
// impact fraction × user LTV × confidence share. Anonymous sessions
// (ltv=0) always value to zero.
func DollarValue(section events.Section, e Emotion, confidence int, ltvUSD float64) float64 {
	v := ImpactFraction(section, e) * ltvUSD * float64(confidence) / 100
	// Round to cents to keep samples stable across replays.
	return math.Round(v*100) / 100
}

func clampFraction(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < -1 {
		return -1
	}
	return f
}
