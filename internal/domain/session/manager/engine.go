// SPDX-License-Identifier: MIT

// Package manager hosts the session engine: the per-session serialization
// point, the playback state machine and the command processing surface.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jamcast/jamd/internal/catalog"
	"github.com/jamcast/jamd/internal/config"
	"github.com/jamcast/jamd/internal/domain/session/dispatch"
	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/domain/session/store"
	"github.com/jamcast/jamd/internal/log"
	"github.com/jamcast/jamd/internal/metrics"
)

// Options tune engine behavior.
type Options struct {
	// AcquireTimeout bounds how long a command waits for its session's
	// serialization point before failing with ErrTimeout.
	AcquireTimeout time.Duration
	RemovalPolicy  config.RemovalPolicy
	IdempotencyTTL time.Duration
	// AutoAdvance arms a timer that ends the current track after its catalog
	// duration elapses. The explicit track-ended signal works either way.
	AutoAdvance bool
}

// Engine coordinates all sessions. Commands against one session execute
// one-at-a-time in arrival order; different sessions proceed in parallel.
type Engine struct {
	store    store.Store
	catalog  catalog.Resolver
	dispatch *dispatch.Dispatcher
	opts     Options
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*handle
}

// handle is the in-process anchor of one live session. The 1-slot channel is
// the session's serialization point.
type handle struct {
	id    string
	slot  chan struct{}
	gen   atomic.Int64 // playback generation, invalidates stale advance timers
	timer *time.Timer  // armed only while the slot is held
}

// New builds an Engine. Call Load before serving commands to restore
// persisted sessions.
func New(st store.Store, cat catalog.Resolver, d *dispatch.Dispatcher, opts Options) *Engine {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Second
	}
	if opts.RemovalPolicy == "" {
		opts.RemovalPolicy = config.RemovalContributor
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 10 * time.Minute
	}
	return &Engine{
		store:    st,
		catalog:  cat,
		dispatch: d,
		opts:     opts,
		logger:   log.WithComponent("engine"),
		sessions: make(map[string]*handle),
	}
}

// Load restores persisted sessions into the registry. Sessions that were
// playing at shutdown resume paused, with the position frozen at the moment
// of the last persisted update.
func (e *Engine) Load(ctx context.Context) error {
	recs, err := e.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("engine: load sessions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range recs {
		if rec.State == model.StatePlaying {
			elapsed := rec.UpdatedAt.Sub(rec.PlayingSince)
			if elapsed > 0 {
				rec.PositionMS += elapsed.Milliseconds()
			}
			rec.PlayingSince = time.Time{}
			rec.State = model.StatePaused
			if err := e.store.UpdateSession(ctx, rec); err != nil {
				return fmt.Errorf("engine: pause recovered session %s: %w", rec.ID, err)
			}
			e.logger.Info().
				Str(log.FieldSessionID, rec.ID).
				Str("event", "engine.recover.paused").
				Msg("recovered playing session as paused")
		}
		e.sessions[rec.ID] = newHandle(rec.ID)
		metrics.SessionsActive.Inc()
	}
	return nil
}

func newHandle(id string) *handle {
	return &handle{id: id, slot: make(chan struct{}, 1)}
}

// acquire takes the session's serialization point, waiting at most timeout.
func (h *handle) acquire(ctx context.Context, timeout time.Duration) error {
	select {
	case h.slot <- struct{}{}:
		return nil
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case h.slot <- struct{}{}:
		return nil
	case <-t.C:
		return model.ErrTimeout
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", model.ErrTimeout, ctx.Err())
	}
}

func (h *handle) release() { <-h.slot }

func (e *Engine) lookup(id string) (*handle, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.sessions[id]
	return h, ok
}

// CreateSession registers a new idle session.
func (e *Engine) CreateSession(ctx context.Context, name, description, owner string) (*model.Snapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: session name required", model.ErrInvalidCommand)
	}
	now := time.Now()
	rec := &model.SessionRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Owner:       owner,
		State:       model.StateIdle,
		NextSeq:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastIdleAt:  now,
	}
	if err := e.store.CreateSession(ctx, rec); err != nil {
		return nil, asUnavailable(err)
	}

	e.mu.Lock()
	e.sessions[rec.ID] = newHandle(rec.ID)
	e.mu.Unlock()
	metrics.SessionsActive.Inc()

	e.logger.Info().
		Str(log.FieldSessionID, rec.ID).
		Str("event", "session.created").
		Str("name", name).
		Msg("session created")

	snap := e.buildSnapshot(ctx, rec, true)
	return &snap, nil
}

// CloseSession tears a session down: final broadcast, subscriber disposal,
// row removal. Closing an unknown or already-closed session is a no-op.
func (e *Engine) CloseSession(ctx context.Context, sessionID string) error {
	h, ok := e.lookup(sessionID)
	if !ok {
		return nil
	}
	if err := h.acquire(ctx, e.opts.AcquireTimeout); err != nil {
		metrics.IncCommand("close", model.ErrorKind(err))
		return err
	}
	defer h.release()

	// Another close may have won while we waited.
	e.mu.Lock()
	if _, still := e.sessions[sessionID]; !still {
		e.mu.Unlock()
		return nil
	}
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	metrics.SessionsActive.Dec()

	h.gen.Add(1)
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}

	rec, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return asUnavailable(err)
	}
	if rec != nil {
		snap := e.buildSnapshot(ctx, rec, false)
		e.dispatch.Publish(model.SessionChanged{
			Snapshot:  snap,
			Op:        "close",
			EmittedAt: time.Now(),
			Closed:    true,
		})
	}
	e.dispatch.DropSession(sessionID)

	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		return asUnavailable(err)
	}

	e.logger.Info().
		Str(log.FieldSessionID, sessionID).
		Str("event", "session.closed").
		Msg("session closed")
	metrics.IncCommand("close", "ok")
	return nil
}

// Snapshot returns the full observable state of a session. Read-only: it does
// not take the serialization point and is safe to retry. The session row and
// the queue are read separately, so a command landing between the two reads
// can show the new current track next to the not-yet-advanced queue (or the
// reverse). Subscribers get the authoritative ordering from the event stream;
// this is a point-in-time view.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	if _, ok := e.lookup(sessionID); !ok {
		return nil, model.ErrSessionNotFound
	}
	rec, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, asUnavailable(err)
	}
	if rec == nil {
		return nil, model.ErrSessionNotFound
	}
	snap := e.buildSnapshot(ctx, rec, true)
	return &snap, nil
}

// ListSessions enumerates active sessions. Current tracks are not resolved
// against the catalog to keep enumeration cheap.
func (e *Engine) ListSessions(ctx context.Context) ([]model.Snapshot, error) {
	recs, err := e.store.ListSessions(ctx)
	if err != nil {
		return nil, asUnavailable(err)
	}
	out := make([]model.Snapshot, 0, len(recs))
	for _, rec := range recs {
		if _, ok := e.lookup(rec.ID); !ok {
			continue // closing concurrently
		}
		out = append(out, e.buildSnapshot(ctx, rec, false))
	}
	return out, nil
}

// SubscribeEvents attaches a listener to the session's event stream. Past
// events are not replayed; pair with Snapshot for catch-up.
func (e *Engine) SubscribeEvents(sessionID, participantID string) (*dispatch.Subscription, error) {
	if _, ok := e.lookup(sessionID); !ok {
		return nil, model.ErrSessionNotFound
	}
	return e.dispatch.Subscribe(sessionID, participantID), nil
}

// buildSnapshot assembles the observable state from the record plus queue and
// membership. resolve controls catalog enrichment of the current track.
func (e *Engine) buildSnapshot(ctx context.Context, rec *model.SessionRecord, resolve bool) model.Snapshot {
	now := time.Now()
	snap := model.Snapshot{
		SessionID:       rec.ID,
		Name:            rec.Name,
		Description:     rec.Description,
		State:           rec.State,
		CurrentTrackRef: rec.CurrentTrackRef,
		PositionSecs:    rec.Position(now).Seconds(),
		IsPlaying:       rec.State == model.StatePlaying,
		Queue:           []model.QueueEntryView{},
		Participants:    []model.ParticipantView{},
		CreatedAt:       rec.CreatedAt,
	}

	if entries, err := e.store.ListQueue(ctx, rec.ID); err == nil {
		for _, q := range entries {
			snap.Queue = append(snap.Queue, model.QueueEntryView{
				ID:          q.ID,
				TrackRef:    q.TrackRef,
				Contributor: q.Contributor,
				Seq:         q.Seq,
				EnqueuedAt:  q.EnqueuedAt,
			})
		}
	} else {
		e.logger.Warn().Err(err).Str(log.FieldSessionID, rec.ID).Msg("queue snapshot failed")
	}

	if parts, err := e.store.ListParticipants(ctx, rec.ID); err == nil {
		for _, p := range parts {
			snap.Participants = append(snap.Participants, model.ParticipantView{
				ID:          p.ID,
				DisplayName: p.DisplayName,
				JoinedAt:    p.JoinedAt,
			})
		}
	} else {
		e.logger.Warn().Err(err).Str(log.FieldSessionID, rec.ID).Msg("participant snapshot failed")
	}

	if resolve && rec.CurrentTrackRef != "" {
		if t, err := e.catalog.ResolveTrack(ctx, rec.CurrentTrackRef); err == nil {
			snap.CurrentTrack = &model.TrackInfo{
				Ref:        t.Ref,
				Title:      t.Title,
				Artist:     t.Artist,
				DurationMS: t.Duration.Milliseconds(),
				ContentRef: t.ContentRef,
			}
		}
	}

	return snap
}

func (e *Engine) publish(ctx context.Context, rec *model.SessionRecord, op string) {
	snap := e.buildSnapshot(ctx, rec, true)
	e.dispatch.Publish(model.SessionChanged{
		Snapshot:  snap,
		Op:        op,
		EmittedAt: time.Now(),
	})
}

// asUnavailable translates storage and other internal failures into the
// stable Unavailable kind without masking already-typed engine errors.
func asUnavailable(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		model.ErrSessionNotFound, model.ErrTrackNotFound, model.ErrInvalidCommand,
		model.ErrTimeout, model.ErrUnauthorized, model.ErrUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
}
