// SPDX-License-Identifier: MIT

// Package store persists sessions, queue entries and participants.
package store

import (
	"context"
	"time"

	"github.com/jamcast/jamd/internal/domain/session/model"
)

// Store is the persistence contract of the engine. Lookups return (nil, nil)
// when the record is absent; callers translate that to their own error kinds.
//
// The engine serializes all mutating calls per session, so implementations
// only need per-call atomicity, not cross-call coordination.
type Store interface {
	CreateSession(ctx context.Context, rec *model.SessionRecord) error
	GetSession(ctx context.Context, id string) (*model.SessionRecord, error)
	UpdateSession(ctx context.Context, rec *model.SessionRecord) error
	ListSessions(ctx context.Context) ([]*model.SessionRecord, error)
	// DeleteSession removes the session and all of its queue entries and
	// participants.
	DeleteSession(ctx context.Context, id string) error

	// Enqueue appends an entry, allocating e.Seq strictly greater than any
	// sequence number previously issued for the session, even across
	// restarts and removals.
	Enqueue(ctx context.Context, e *model.QueueEntry) error
	// PeekNext returns the lowest-sequence entry without removing it, or nil.
	PeekNext(ctx context.Context, sessionID string) (*model.QueueEntry, error)
	// Dequeue atomically removes and returns the lowest-sequence entry, or
	// nil when the queue is empty. An empty queue is not an error.
	Dequeue(ctx context.Context, sessionID string) (*model.QueueEntry, error)
	// RemoveEntry removes a specific entry. A false return means the entry
	// was already consumed or never existed, which is an expected race.
	RemoveEntry(ctx context.Context, sessionID, entryID string) (bool, error)
	// ListQueue returns a point-in-time snapshot ordered by sequence number.
	ListQueue(ctx context.Context, sessionID string) ([]*model.QueueEntry, error)

	AddParticipant(ctx context.Context, p *model.Participant) error
	RemoveParticipant(ctx context.Context, sessionID, participantID string) (bool, error)
	ListParticipants(ctx context.Context, sessionID string) ([]*model.Participant, error)

	// GetIdempotency resolves a client idempotency key to the queue entry it
	// created, or nil when the key is unknown or expired.
	GetIdempotency(ctx context.Context, key string) (*IdemRecord, error)
	PutIdempotency(ctx context.Context, key string, rec IdemRecord, ttl time.Duration) error

	Close() error
}

// IdemRecord is the remembered outcome of an enqueue carrying an idempotency
// key. Seq is kept so a replay can report the original entry even after the
// queue has advanced past it.
type IdemRecord struct {
	EntryID string
	Seq     int64
}
