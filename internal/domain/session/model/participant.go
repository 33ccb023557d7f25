// SPDX-License-Identifier: MIT

package model

import "time"

// Participant is one member of a session.
type Participant struct {
	SessionID   string
	ID          string
	DisplayName string
	JoinedAt    time.Time
}
