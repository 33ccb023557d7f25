// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"time"

	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/log"
)

// armAutoAdvance (re)schedules the end-of-track timer for the session. Called
// with the serialization point held after every accepted mutation; any timer
// armed for an earlier playback generation becomes a no-op.
func (e *Engine) armAutoAdvance(ctx context.Context, h *handle, rec *model.SessionRecord) {
	gen := h.gen.Add(1)
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if !e.opts.AutoAdvance || rec.State != model.StatePlaying || rec.CurrentTrackRef == "" {
		return
	}

	t, err := e.catalog.ResolveTrack(ctx, rec.CurrentTrackRef)
	if err != nil || t.Duration <= 0 {
		return // unknown duration, rely on the external track-ended signal
	}

	remaining := t.Duration - rec.Position(time.Now())
	if remaining < 0 {
		remaining = 0
	}

	sessionID := rec.ID
	h.timer = time.AfterFunc(remaining, func() {
		e.fireAutoAdvance(sessionID, gen)
	})
}

func (e *Engine) fireAutoAdvance(sessionID string, gen int64) {
	h, ok := e.lookup(sessionID)
	if !ok || h.gen.Load() != gen {
		return // session closed or playback changed since the timer was armed
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.AcquireTimeout+time.Second)
	defer cancel()

	if err := e.TrackEnded(ctx, sessionID); err != nil {
		e.logger.Warn().Err(err).
			Str(log.FieldSessionID, sessionID).
			Str("event", "playback.autoadvance.failed").
			Msg("auto-advance could not end track")
	}
}
