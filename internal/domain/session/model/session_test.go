// SPDX-License-Identifier: MIT

package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPositionAdvancesOnlyWhilePlaying(t *testing.T) {
	now := time.Now()
	s := &SessionRecord{State: StatePaused, PositionMS: 4_000}
	require.Equal(t, 4*time.Second, s.Position(now.Add(time.Minute)))

	s.StartTrack("track:a", now)
	require.Equal(t, StatePlaying, s.State)
	require.Equal(t, 10*time.Second, s.Position(now.Add(10*time.Second)))
}

func TestFreezeFoldsElapsedTime(t *testing.T) {
	now := time.Now()
	s := &SessionRecord{}
	s.StartTrack("track:a", now.Add(-30*time.Second))

	s.Freeze(now)
	s.State = StatePaused

	require.InDelta(t, 30_000, s.PositionMS, 50)
	require.True(t, s.PlayingSince.IsZero())
	// Frozen position is stable regardless of when it is read.
	require.Equal(t, s.Position(now), s.Position(now.Add(time.Hour)))
}

func TestGoIdleClearsPlayback(t *testing.T) {
	now := time.Now()
	s := &SessionRecord{}
	s.StartTrack("track:a", now.Add(-time.Minute))

	s.GoIdle(now)

	require.Equal(t, StateIdle, s.State)
	require.Empty(t, s.CurrentTrackRef)
	require.Zero(t, s.PositionMS)
	require.Equal(t, now, s.LastIdleAt)
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{ErrSessionNotFound, "session_not_found"},
		{ErrTrackNotFound, "track_not_found"},
		{ErrInvalidCommand, "invalid_command"},
		{ErrTimeout, "timeout"},
		{ErrUnauthorized, "unauthorized"},
		{ErrUnavailable, "unavailable"},
		{fmt.Errorf("wrapped: %w", ErrTimeout), "timeout"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, ErrorKind(tc.err))
	}
}
