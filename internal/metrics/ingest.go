// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus instrumentation shared by all
// moodpulse components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_ingest_batches_total",
		Help: "Telemetry batches received, by result (accepted, rejected, rate_limited, oversized)",
	}, []string{"result"})

	IngestEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodpulse_ingest_events_total",
		Help: "Telemetry events after batch decode, by disposition (accepted, unknown_type, duplicate)",
	}, []string{"disposition"})

	SessionQueueDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodpulse_session_queue_drops_total",
		Help: "Events dropped from per-session queues under backpressure (drop-oldest)",
	})
)

// IncIngestBatch records one ingest batch with its result label.
func IncIngestBatch(result string) {
	IngestBatchesTotal.WithLabelValues(result).Inc()
}

// IncIngestEvent records one decoded event disposition.
func IncIngestEvent(disposition string) {
	IngestEventsTotal.WithLabelValues(disposition).Inc()
}
