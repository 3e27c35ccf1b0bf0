// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldTenantID      = "tenant_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldUserID        = "user_id"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldShard     = "shard"
	FieldTopic     = "topic"

	// Emotion fields
	FieldEmotion    = "emotion"
	FieldConfidence = "confidence"
	FieldSection    = "section"
	FieldPattern    = "pattern"

	// Intervention fields
	FieldIntervention = "intervention_type"
	FieldPriority     = "priority"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldOutcome  = "outcome"
)
