// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldCheckinID     = "checkin_id"
	FieldSessionID     = "session_id"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "op"

	// Camera fields
	FieldDevice     = "device"
	FieldFacing     = "facing"
	FieldFacingWant = "facing_requested"
	FieldResolution = "resolution"
	FieldReason     = "reason"
	FieldGeneration = "generation"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldStep     = "step"

	// Upstream fields
	FieldBaseURL = "base_url"
	FieldStatus  = "status"
	FieldPath    = "path"
)
