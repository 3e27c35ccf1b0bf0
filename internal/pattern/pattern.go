// SPDX-License-Identifier: MIT

// Package pattern detects multi-emotion sequences in a session's recent
// history and maps them, together with single-emotion triggers, to
// intervention candidates.
package pattern

import "github.com/moodpulse/moodpulse/internal/emotion"

// Priority orders intervention candidates. Only high and critical
// candidates survive the intervention engine's gate.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank supports comparisons; higher wins.
var rank = map[Priority]int{
	PriorityLow: 0, PriorityMedium: 1, PriorityHigh: 2, PriorityCritical: 3,
}

// Outranks reports whether p is strictly higher priority than q.
func (p Priority) Outranks(q Priority) bool {
	return rank[p] > rank[q]
}

// Actionable reports whether the priority clears the dispatch gate.
func (p Priority) Actionable() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// Pattern names a recognized multi-emotion sequence.
type Pattern string

const (
	CartAbandonmentImminent  Pattern = "cart_abandonment_imminent"
	FinancialFearSpiral      Pattern = "financial_fear_spiral"
	TrustCrisis              Pattern = "trust_crisis"
	PrePurchaseRemorse       Pattern = "pre_purchase_remorse"
	PricingAnalysisParalysis Pattern = "pricing_analysis_paralysis"
	RepeatedFrustration      Pattern = "repeated_frustration"

	// Single-emotion triggers share the detection plumbing.
	TriggerStickerShock    Pattern = "trigger_sticker_shock"
	TriggerRage            Pattern = "trigger_rage"
	TriggerAbandonmentRisk Pattern = "trigger_abandonment_risk"
)

// Intervention names a client-side intervention type.
type Intervention string

const (
	CartSaveModal        Intervention = "cart_save_modal"
	ReassuranceMessaging Intervention = "reassurance_messaging"
	SocialProof          Intervention = "social_proof"
	GuaranteeHighlight   Intervention = "guarantee_highlight"
	TierGuidance         Intervention = "tier_guidance"
	HelpOffer            Intervention = "help_offer"
	ValueProposition     Intervention = "value_proposition"
	ExitIntentModal      Intervention = "exit_intent_modal"
)

// Detection is one intervention candidate produced from a session's
// emotion history.
type Detection struct {
	Pattern      Pattern
	Intervention Intervention
	Priority     Priority
	// Emotion is the newest sample that completed the pattern.
	Emotion emotion.Emotion
}
