// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldVideoID   = "video_id"
	FieldCourseID  = "course_id"
	FieldTokenID   = "jti"
	FieldKeyID     = "kid"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// HTTP fields
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldRoute      = "route"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldBytes      = "bytes"
	FieldRemoteAddr = "remote_addr"
	FieldAsset      = "asset"
)
