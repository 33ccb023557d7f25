// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldParticipantID = "participant_id"
	FieldRequestID     = "request_id"
	FieldEntryID       = "entry_id"
	FieldTrackRef      = "track_ref"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOp        = "op"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldSeq      = "seq"
)
