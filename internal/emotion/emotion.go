// SPDX-License-Identifier: MIT

// Package emotion maps session physics and events to a discrete emotional
// state with confidence. The classifier is a pure function of its input;
// all session-scoped state (cooldowns) lives with the caller.
package emotion

import (
	"time"

	"github.com/moodpulse/moodpulse/internal/events"
	"github.com/moodpulse/moodpulse/internal/physics"
)

// Emotion is a label from the closed vocabulary.
type Emotion string

const (
	// Universal / navigation
	Rage                 Emotion = "rage"
	AbandonmentRisk      Emotion = "abandonment_risk"
	AbandonmentIntent    Emotion = "abandonment_intent"
	Confusion            Emotion = "confusion"
	Frustration          Emotion = "frustration"
	Distracted           Emotion = "distracted"
	Exploring            Emotion = "exploring"
	Browsing             Emotion = "browsing"
	Curiosity            Emotion = "curiosity"
	Engagement           Emotion = "engagement"
	Delight              Emotion = "delight"
	ImmediateBounceRisk  Emotion = "immediate_bounce_risk"
	DeliberateReading    Emotion = "deliberate_reading"

	// Pricing family
	PurchaseIntent       Emotion = "purchase_intent"
	StrongPurchaseIntent Emotion = "strong_purchase_intent"
	StickerShock         Emotion = "sticker_shock"
	TierComparison       Emotion = "tier_comparison"
	PriceConsideration   Emotion = "price_consideration"
	PriceParalysis       Emotion = "price_paralysis"
	PurchaseDeliberation Emotion = "purchase_deliberation"
	FinancialAnxiety     Emotion = "financial_anxiety"
	ComparisonShopping   Emotion = "comparison_shopping"

	// Trust family
	TrustHesitation   Emotion = "trust_hesitation"
	SeekingValidation Emotion = "seeking_validation"
	ReferenceChecking Emotion = "reference_checking"
	ExploringElsewhere Emotion = "exploring_elsewhere"

	// Cart / checkout family
	CartHesitation     Emotion = "cart_hesitation"
	CartReview         Emotion = "cart_review"
	CheckoutIntent     Emotion = "checkout_intent"
	CheckoutHesitation Emotion = "checkout_hesitation"
	CommitmentAnxiety  Emotion = "commitment_anxiety"

	// Contact
	SubmissionConfidence Emotion = "submission_confidence"
	FormHesitation       Emotion = "form_hesitation"
)

// priceFamily is the set of emotions damped for very young sessions.
var priceFamily = map[Emotion]struct{}{
	PurchaseIntent: {}, StrongPurchaseIntent: {}, StickerShock: {},
	TierComparison: {}, PriceConsideration: {}, PriceParalysis: {},
	PurchaseDeliberation: {}, FinancialAnxiety: {},
}

// PriceRelated reports whether e belongs to the price-sensitive family.
func PriceRelated(e Emotion) bool {
	_, ok := priceFamily[e]
	return ok
}

// frustrationFamily feeds the repeated_frustration pattern.
var frustrationFamily = map[Emotion]struct{}{
	Rage: {}, Frustration: {}, Confusion: {},
}

// FrustrationRelated reports whether e signals user frustration.
func FrustrationRelated(e Emotion) bool {
	_, ok := frustrationFamily[e]
	return ok
}

// Sample is one classified emotional observation for a session.
type Sample struct {
	SessionID string          `json:"session_id"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"ts"`
	Emotion   Emotion         `json:"emotion"`
	// Confidence is in [0,100].
	Confidence int             `json:"confidence"`
	Section    events.Section  `json:"section"`
	Scores     map[Emotion]int `json:"scores,omitempty"`
	// DollarValue is the signed monetary impact attached to this sample.
	DollarValue float64        `json:"dollar_value"`
	Physics     physics.State  `json:"physics_snapshot"`
}
