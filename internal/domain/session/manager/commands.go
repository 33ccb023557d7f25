// SPDX-License-Identifier: MIT

package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jamcast/jamd/internal/catalog"
	"github.com/jamcast/jamd/internal/config"
	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/domain/session/store"
	"github.com/jamcast/jamd/internal/log"
	"github.com/jamcast/jamd/internal/metrics"
)

// withSession resolves the session, takes its serialization point and runs
// fn. When fn reports a mutation, the record is persisted and a
// SessionChanged event is published with the given op name. Rejected commands
// return a typed error and publish nothing.
func (e *Engine) withSession(ctx context.Context, sessionID, op string, fn func(rec *model.SessionRecord) (mutated bool, err error)) error {
	h, ok := e.lookup(sessionID)
	if !ok {
		metrics.IncCommand(op, "session_not_found")
		return model.ErrSessionNotFound
	}
	if err := h.acquire(ctx, e.opts.AcquireTimeout); err != nil {
		metrics.IncCommand(op, model.ErrorKind(err))
		return err
	}
	defer h.release()

	rec, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		metrics.IncCommand(op, "unavailable")
		return asUnavailable(err)
	}
	if rec == nil {
		// Closed while we waited for the slot.
		metrics.IncCommand(op, "session_not_found")
		return model.ErrSessionNotFound
	}

	mutated, err := fn(rec)
	if err != nil {
		err = asUnavailable(err)
		metrics.IncCommand(op, model.ErrorKind(err))
		return err
	}
	if mutated {
		if err := e.store.UpdateSession(ctx, rec); err != nil {
			metrics.IncCommand(op, "unavailable")
			return asUnavailable(err)
		}
		e.armAutoAdvance(ctx, h, rec)
		e.publish(ctx, rec, op)
	}
	metrics.IncCommand(op, "ok")
	return nil
}

func (e *Engine) requireMember(ctx context.Context, sessionID, participantID string) error {
	if participantID == "" {
		return fmt.Errorf("%w: participant id required", model.ErrInvalidCommand)
	}
	parts, err := e.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if p.ID == participantID {
			return nil
		}
	}
	return fmt.Errorf("%w: participant %s is not a member of session %s", model.ErrUnauthorized, participantID, sessionID)
}

// Join adds a participant to the session. Joining twice refreshes the
// display name and is not an error.
func (e *Engine) Join(ctx context.Context, sessionID, participantID, displayName string) error {
	return e.withSession(ctx, sessionID, "join", func(rec *model.SessionRecord) (bool, error) {
		if participantID == "" {
			return false, fmt.Errorf("%w: participant id required", model.ErrInvalidCommand)
		}
		if displayName == "" {
			displayName = participantID
		}
		p := &model.Participant{
			SessionID:   sessionID,
			ID:          participantID,
			DisplayName: displayName,
			JoinedAt:    time.Now(),
		}
		if err := e.store.AddParticipant(ctx, p); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Leave removes a participant. Leaving a session one is not part of is a
// no-op.
func (e *Engine) Leave(ctx context.Context, sessionID, participantID string) error {
	return e.withSession(ctx, sessionID, "leave", func(rec *model.SessionRecord) (bool, error) {
		if participantID == "" {
			return false, fmt.Errorf("%w: participant id required", model.ErrInvalidCommand)
		}
		removed, err := e.store.RemoveParticipant(ctx, sessionID, participantID)
		if err != nil {
			return false, err
		}
		return removed, nil
	})
}

// Enqueue validates the track against the catalog and appends it to the
// session queue. The first enqueue into an idle session starts playback.
// A repeated idempotency key replays the original outcome without queueing
// twice.
func (e *Engine) Enqueue(ctx context.Context, sessionID, participantID, trackRef, idemKey string) (*model.QueueEntry, error) {
	var result *model.QueueEntry
	err := e.withSession(ctx, sessionID, "enqueue", func(rec *model.SessionRecord) (bool, error) {
		if trackRef == "" {
			return false, fmt.Errorf("%w: track ref required", model.ErrInvalidCommand)
		}
		if err := e.requireMember(ctx, sessionID, participantID); err != nil {
			return false, err
		}

		if idemKey != "" {
			idem, err := e.store.GetIdempotency(ctx, idemKey)
			if err != nil {
				return false, err
			}
			if idem != nil {
				// Replay the original outcome. The entry may already be
				// consumed; its recorded id and sequence still identify it.
				result = &model.QueueEntry{
					ID:          idem.EntryID,
					SessionID:   sessionID,
					TrackRef:    trackRef,
					Contributor: participantID,
					Seq:         idem.Seq,
				}
				for _, q := range mustListQueue(ctx, e, sessionID) {
					if q.ID == idem.EntryID {
						result = q
						break
					}
				}
				return false, nil
			}
		}

		if _, err := e.catalog.ResolveTrack(ctx, trackRef); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return false, fmt.Errorf("%w: %s", model.ErrTrackNotFound, trackRef)
			}
			return false, err
		}

		entry := &model.QueueEntry{
			ID:          uuid.NewString(),
			SessionID:   sessionID,
			TrackRef:    trackRef,
			Contributor: participantID,
			EnqueuedAt:  time.Now(),
		}
		if err := e.store.Enqueue(ctx, entry); err != nil {
			return false, err
		}
		if idemKey != "" {
			rec := store.IdemRecord{EntryID: entry.ID, Seq: entry.Seq}
			if err := e.store.PutIdempotency(ctx, idemKey, rec, e.opts.IdempotencyTTL); err != nil {
				return false, err
			}
		}
		result = entry

		e.logger.Debug().
			Str(log.FieldSessionID, sessionID).
			Str(log.FieldEntryID, entry.ID).
			Str(log.FieldTrackRef, trackRef).
			Int64(log.FieldSeq, entry.Seq).
			Str("event", "queue.enqueued").
			Msg("track enqueued")

		// Autoplay: first track into an idle session starts playing.
		if rec.State == model.StateIdle && rec.CurrentTrackRef == "" {
			next, err := e.store.Dequeue(ctx, sessionID)
			if err != nil {
				return false, err
			}
			if next != nil {
				metrics.DequeuesTotal.Inc()
				rec.StartTrack(next.TrackRef, time.Now())
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveEntry removes a pending queue entry, subject to the configured
// removal policy. A missing entry reports removed=false, not an error: the
// engine may have concurrently advanced the queue past it.
func (e *Engine) RemoveEntry(ctx context.Context, sessionID, participantID, entryID string) (bool, error) {
	removed := false
	err := e.withSession(ctx, sessionID, "remove", func(rec *model.SessionRecord) (bool, error) {
		if entryID == "" {
			return false, fmt.Errorf("%w: entry id required", model.ErrInvalidCommand)
		}
		if err := e.requireMember(ctx, sessionID, participantID); err != nil {
			return false, err
		}

		var target *model.QueueEntry
		for _, q := range mustListQueue(ctx, e, sessionID) {
			if q.ID == entryID {
				target = q
				break
			}
		}
		if target == nil {
			return false, nil
		}

		switch e.opts.RemovalPolicy {
		case config.RemovalAny:
		case config.RemovalContributor:
			if target.Contributor != participantID {
				return false, fmt.Errorf("%w: only the contributor may remove entry %s", model.ErrUnauthorized, entryID)
			}
		case config.RemovalOwner:
			if rec.Owner != participantID {
				return false, fmt.Errorf("%w: only the session owner may remove entries", model.ErrUnauthorized)
			}
		}

		ok, err := e.store.RemoveEntry(ctx, sessionID, entryID)
		if err != nil {
			return false, err
		}
		removed = ok
		return ok, nil
	})
	return removed, err
}

// Play resumes a paused session. Playing while already playing is accepted
// and changes nothing; play on an idle session is a no-op.
func (e *Engine) Play(ctx context.Context, sessionID, participantID string) error {
	return e.withSession(ctx, sessionID, "play", func(rec *model.SessionRecord) (bool, error) {
		if err := e.requireMember(ctx, sessionID, participantID); err != nil {
			return false, err
		}
		if rec.State != model.StatePaused {
			return false, nil
		}
		rec.State = model.StatePlaying
		rec.PlayingSince = time.Now()
		return true, nil
	})
}

// Pause freezes playback. Pausing while paused or idle is accepted and
// changes nothing.
func (e *Engine) Pause(ctx context.Context, sessionID, participantID string) error {
	return e.withSession(ctx, sessionID, "pause", func(rec *model.SessionRecord) (bool, error) {
		if err := e.requireMember(ctx, sessionID, participantID); err != nil {
			return false, err
		}
		if rec.State != model.StatePlaying {
			return false, nil
		}
		rec.Freeze(time.Now())
		rec.State = model.StatePaused
		return true, nil
	})
}

// Skip consumes the next queued track, or transitions to idle when the queue
// is empty. Skip on an idle session is a no-op.
func (e *Engine) Skip(ctx context.Context, sessionID, participantID string) error {
	return e.withSession(ctx, sessionID, "skip", func(rec *model.SessionRecord) (bool, error) {
		if err := e.requireMember(ctx, sessionID, participantID); err != nil {
			return false, err
		}
		return e.advanceLocked(ctx, rec)
	})
}

// TrackEnded is the external end-of-track signal; it advances the queue the
// same way skip does.
func (e *Engine) TrackEnded(ctx context.Context, sessionID string) error {
	return e.withSession(ctx, sessionID, "track-ended", func(rec *model.SessionRecord) (bool, error) {
		return e.advanceLocked(ctx, rec)
	})
}

// advanceLocked performs the queue-advance transition. Callers hold the
// session's serialization point, so exactly one dequeue happens per logical
// skip.
func (e *Engine) advanceLocked(ctx context.Context, rec *model.SessionRecord) (bool, error) {
	if rec.State == model.StateIdle {
		return false, nil
	}
	old := rec.State
	next, err := e.store.Dequeue(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	if next == nil {
		rec.GoIdle(now)
	} else {
		metrics.DequeuesTotal.Inc()
		rec.StartTrack(next.TrackRef, now)
	}
	e.logger.Debug().
		Str(log.FieldSessionID, rec.ID).
		Str(log.FieldOldState, string(old)).
		Str(log.FieldNewState, string(rec.State)).
		Str(log.FieldTrackRef, rec.CurrentTrackRef).
		Str("event", "playback.advanced").
		Msg("queue advanced")
	return true, nil
}

func mustListQueue(ctx context.Context, e *Engine, sessionID string) []*model.QueueEntry {
	entries, err := e.store.ListQueue(ctx, sessionID)
	if err != nil {
		e.logger.Warn().Err(err).Str(log.FieldSessionID, sessionID).Msg("queue list failed")
		return nil
	}
	return entries
}
