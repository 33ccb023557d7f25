// SPDX-License-Identifier: MIT

package model

import "time"

// TrackInfo is resolved catalog metadata carried in snapshots and events.
type TrackInfo struct {
	Ref        string  `json:"ref"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	DurationMS int64   `json:"duration_ms"`
	ContentRef string  `json:"content_ref"`
}

// QueueEntryView is the observable form of one pending entry.
type QueueEntryView struct {
	ID          string    `json:"id"`
	TrackRef    string    `json:"track_ref"`
	Contributor string    `json:"contributor"`
	Seq         int64     `json:"seq"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// ParticipantView is the observable form of one session member.
type ParticipantView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Snapshot is the complete observable state of a session at one instant.
// New subscribers fetch a snapshot instead of replaying past events.
type Snapshot struct {
	SessionID       string            `json:"session_id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	State           PlaybackState     `json:"state"`
	CurrentTrackRef string            `json:"current_track_ref,omitempty"`
	CurrentTrack    *TrackInfo        `json:"current_track,omitempty"`
	PositionSecs    float64           `json:"playback_position"`
	IsPlaying       bool              `json:"is_playing"`
	Queue           []QueueEntryView  `json:"queue"`
	Participants    []ParticipantView `json:"participants"`
	CreatedAt       time.Time         `json:"created_at"`
}

// SessionChanged is emitted after every accepted mutating command. Within one
// session, subscribers observe these in serialization order.
type SessionChanged struct {
	Snapshot
	Op        string    `json:"op"` // the accepted operation, e.g. "enqueue"
	EmittedAt time.Time `json:"emitted_at"`
	Closed    bool      `json:"closed,omitempty"` // final event before teardown
}
