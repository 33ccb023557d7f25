// SPDX-License-Identifier: MIT

package model

import "errors"

// Stable error kinds callers can branch on with errors.Is. Storage faults and
// other internals are translated to ErrUnavailable before they leave the
// engine.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTrackNotFound   = errors.New("track not found")
	ErrInvalidCommand  = errors.New("invalid command")
	ErrTimeout         = errors.New("session serialization timeout")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnavailable     = errors.New("engine unavailable")
)

// ErrorKind returns the stable kind name for a known engine error, or
// "internal" for anything else.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrTrackNotFound):
		return "track_not_found"
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}
