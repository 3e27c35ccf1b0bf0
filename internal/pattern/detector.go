// SPDX-License-Identifier: MIT

package pattern

import "github.com/moodpulse/moodpulse/internal/emotion"

// HistoryDepth is how many recent emotion samples the detector consults.
const HistoryDepth = 10

// clickLookback is how many recent events count toward the "user stopped
// clicking" signal for analysis paralysis.
const clickLookback = 5

// Input is a read-only view over one session's recent state. History is
// ordered oldest to newest and holds at most HistoryDepth samples.
type Input struct {
	History []emotion.Sample
	// RecentClicks counts click events among the session's last
	// clickLookback processed events.
	RecentClicks int
}

var financialSet = map[emotion.Emotion]struct{}{
	emotion.FinancialAnxiety: {}, emotion.StickerShock: {},
	emotion.PriceParalysis: {}, emotion.CommitmentAnxiety: {},
}

var trustSet = map[emotion.Emotion]struct{}{
	emotion.TrustHesitation: {}, emotion.SeekingValidation: {},
	emotion.ExploringElsewhere: {},
}

var intentSet = map[emotion.Emotion]struct{}{
	emotion.PurchaseIntent: {}, emotion.StrongPurchaseIntent: {},
	emotion.CheckoutIntent: {},
}

var anxietySet = map[emotion.Emotion]struct{}{
	emotion.CommitmentAnxiety: {}, emotion.FinancialAnxiety: {},
	emotion.CheckoutHesitation: {},
}

var cartDriftSet = map[emotion.Emotion]struct{}{
	emotion.Distracted: {}, emotion.ComparisonShopping: {},
	emotion.AbandonmentIntent: {},
}

// Detector evaluates the pattern catalogue. It is stateless and safe for
// concurrent use; all session state arrives through Input.
type Detector struct{}

func NewDetector() *Detector { return &Detector{} }

// Detect returns every pattern the newest sample completes, plus any
// single-emotion trigger it carries. Edge-triggered: a pattern fires only
// on the sample that completes it, so an unchanged history never re-fires.
func (d *Detector) Detect(in Input) []Detection {
	h := in.History
	if len(h) > HistoryDepth {
		h = h[len(h)-HistoryDepth:]
	}
	if len(h) == 0 {
		return nil
	}
	newest := h[len(h)-1].Emotion
	earlier := h[:len(h)-1]

	var out []Detection
	emit := func(p Pattern, iv Intervention, prio Priority) {
		out = append(out, Detection{Pattern: p, Intervention: iv, Priority: prio, Emotion: newest})
	}

	if _, drift := cartDriftSet[newest]; drift && containsEmotion(earlier, emotion.CartHesitation) {
		emit(CartAbandonmentImminent, CartSaveModal, PriorityCritical)
	}
	if _, fin := financialSet[newest]; fin && countIn(h, financialSet) >= 2 {
		emit(FinancialFearSpiral, ReassuranceMessaging, PriorityHigh)
	}
	if _, tr := trustSet[newest]; tr && countIn(h, trustSet) >= 3 {
		emit(TrustCrisis, SocialProof, PriorityHigh)
	}
	if _, anx := anxietySet[newest]; anx && anyIn(earlier, intentSet) {
		emit(PrePurchaseRemorse, GuaranteeHighlight, PriorityCritical)
	}
	if (newest == emotion.TierComparison || newest == emotion.PriceParalysis) &&
		containsEmotion(h, emotion.TierComparison) && in.RecentClicks == 0 {
		emit(PricingAnalysisParalysis, TierGuidance, PriorityHigh)
	}
	if emotion.FrustrationRelated(newest) && countFrustration(h) >= 3 {
		emit(RepeatedFrustration, HelpOffer, PriorityHigh)
	}

	if t, ok := triggerFor(newest); ok {
		out = append(out, t)
	}
	return out
}

// triggerFor maps single high-signal emotions straight to an intervention
// candidate without waiting for a sequence.
func triggerFor(e emotion.Emotion) (Detection, bool) {
	switch e {
	case emotion.StickerShock:
		return Detection{Pattern: TriggerStickerShock, Intervention: ValueProposition, Priority: PriorityHigh, Emotion: e}, true
	case emotion.Rage:
		return Detection{Pattern: TriggerRage, Intervention: HelpOffer, Priority: PriorityHigh, Emotion: e}, true
	case emotion.AbandonmentRisk:
		return Detection{Pattern: TriggerAbandonmentRisk, Intervention: ExitIntentModal, Priority: PriorityCritical, Emotion: e}, true
	}
	return Detection{}, false
}

func containsEmotion(h []emotion.Sample, e emotion.Emotion) bool {
	for _, s := range h {
		if s.Emotion == e {
			return true
		}
	}
	return false
}

func anyIn(h []emotion.Sample, set map[emotion.Emotion]struct{}) bool {
	for _, s := range h {
		if _, ok := set[s.Emotion]; ok {
			return true
		}
	}
	return false
}

func countIn(h []emotion.Sample, set map[emotion.Emotion]struct{}) int {
	n := 0
	for _, s := range h {
		if _, ok := set[s.Emotion]; ok {
			n++
		}
	}
	return n
}

func countFrustration(h []emotion.Sample) int {
	n := 0
	for _, s := range h {
		if emotion.FrustrationRelated(s.Emotion) {
			n++
		}
	}
	return n
}
