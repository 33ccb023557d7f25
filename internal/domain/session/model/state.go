// SPDX-License-Identifier: MIT

package model

// PlaybackState is the domain-level state of a playback session. It is
// decoupled from the HTTP DTOs to maintain clean layering.
type PlaybackState string

const (
	// StateIdle means no current track. An empty queue with no current track
	// is a valid resting state, not an error.
	StateIdle    PlaybackState = "idle"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)
