// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Session attributes
	SessionIDKey = "session.id"
	TenantIDKey  = "session.tenant_id"
	ShardKey     = "session.shard"

	// Classification attributes
	EmotionKey    = "emotion.name"
	ConfidenceKey = "emotion.confidence"
	SectionKey    = "emotion.section"

	// Intervention attributes
	PatternKey      = "intervention.pattern"
	InterventionKey = "intervention.type"
	PriorityKey     = "intervention.priority"
	DispositionKey  = "intervention.disposition"

	// Ingest attributes
	BatchEventsKey = "ingest.batch_events"
	BatchBytesKey  = "ingest.batch_bytes"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes creates session-scoped span attributes.
func SessionAttributes(sessionID, tenantID string, shard int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if tenantID != "" {
		attrs = append(attrs, attribute.String(TenantIDKey, tenantID))
	}
	if shard >= 0 {
		attrs = append(attrs, attribute.Int(ShardKey, shard))
	}
	return attrs
}

// ClassificationAttributes creates classifier span attributes.
func ClassificationAttributes(emotion, section string, confidence int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EmotionKey, emotion),
		attribute.String(SectionKey, section),
		attribute.Int(ConfidenceKey, confidence),
	}
}

// InterventionAttributes creates intervention span attributes.
func InterventionAttributes(pattern, intervention, priority, disposition string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PatternKey, pattern),
		attribute.String(InterventionKey, intervention),
		attribute.String(PriorityKey, priority),
		attribute.String(DispositionKey, disposition),
	}
}

// IngestAttributes creates ingest span attributes.
func IngestAttributes(batchEvents, batchBytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(BatchEventsKey, batchEvents),
		attribute.Int(BatchBytesKey, batchBytes),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
