// SPDX-License-Identifier: MIT

// Package model holds the session domain entities and their invariants.
package model

import "time"

// SessionRecord is the durable state of one collaborative session.
//
// Invariants:
//   - State == StatePlaying implies CurrentTrackRef != "".
//   - PositionMS advances only while playing; PlayingSince is zero unless
//     State == StatePlaying.
type SessionRecord struct {
	ID          string
	Name        string
	Description string
	Owner       string // participant that created the session

	State           PlaybackState
	CurrentTrackRef string // empty when idle
	PositionMS      int64  // frozen position; excludes time since PlayingSince
	PlayingSince    time.Time

	NextSeq   int64 // next queue sequence number to allocate, never reused
	CreatedAt time.Time
	UpdatedAt time.Time
	LastIdleAt time.Time // when the session last became idle, for sweeping
}

// Position reports the observable playback position at the given instant.
func (s *SessionRecord) Position(now time.Time) time.Duration {
	pos := time.Duration(s.PositionMS) * time.Millisecond
	if s.State == StatePlaying && !s.PlayingSince.IsZero() && now.After(s.PlayingSince) {
		pos += now.Sub(s.PlayingSince)
	}
	return pos
}

// Freeze folds elapsed play time into PositionMS and clears PlayingSince.
// Callers switch State afterwards.
func (s *SessionRecord) Freeze(now time.Time) {
	s.PositionMS = s.Position(now).Milliseconds()
	s.PlayingSince = time.Time{}
}

// StartTrack makes ref the current track, playing from position zero.
func (s *SessionRecord) StartTrack(ref string, now time.Time) {
	s.CurrentTrackRef = ref
	s.PositionMS = 0
	s.PlayingSince = now
	s.State = StatePlaying
}

// GoIdle clears the current track and records the idle transition time.
func (s *SessionRecord) GoIdle(now time.Time) {
	s.CurrentTrackRef = ""
	s.PositionMS = 0
	s.PlayingSince = time.Time{}
	s.State = StateIdle
	s.LastIdleAt = now
}
