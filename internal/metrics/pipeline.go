// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moodpulse_sessions_active",
		Help: "Sessions currently held in the session store",
	})

	SessionsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_sessions_expired_total",
		Help: "Sessions removed from the store, by final outcome",
	}, []string{"outcome"})

	EmotionsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_emotions_emitted_total",
		Help: "Emotion samples emitted by the classifier, by emotion",
	}, []string{"emotion"})

	EmotionsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_emotions_suppressed_total",
		Help: "Classifier results suppressed before emission, by reason (cooldown, null)",
	}, []string{"reason"})

	PatternsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_patterns_detected_total",
		Help: "Behavioral patterns detected, by pattern",
	}, []string{"pattern"})

	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_interventions_total",
		Help: "Intervention decisions, by disposition (dispatched, suppressed) and reason",
	}, []string{"disposition", "reason"})

	ClassifyOverrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodpulse_classify_overruns_total",
		Help: "Classify-to-decide paths that exceeded the 50ms budget",
	})

	ClassifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moodpulse_classify_duration_seconds",
		Help:    "Wall time of the classify-pattern-decide path per event",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	WorkerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_worker_panics_total",
		Help: "Recovered panics inside shard workers, by shard",
	}, []string{"shard"})

	IdentityLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_identity_lookups_total",
		Help: "Identity resolutions, by source (cache, negative_cache, fetch, fallback)",
	}, []string{"source"})
)
