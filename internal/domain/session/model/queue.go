// SPDX-License-Identifier: MIT

package model

import "time"

// QueueEntry is one pending track contribution. Entries are created on
// enqueue, removed on dequeue-to-play or explicit removal, and never mutated.
type QueueEntry struct {
	ID          string
	SessionID   string
	TrackRef    string
	Contributor string
	Seq         int64 // strictly increasing per session, never reused
	EnqueuedAt  time.Time
}
