// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamcast/jamd/internal/domain/session/model"
)

func newTestStore(t *testing.T) (*SqliteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	s, err := NewSqliteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func newSessionRecord(id string) *model.SessionRecord {
	now := time.Now()
	return &model.SessionRecord{
		ID:         id,
		Name:       "test session",
		Owner:      "owner-1",
		State:      model.StateIdle,
		NextSeq:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastIdleAt: now,
	}
}

func TestSqliteSessionRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec := newSessionRecord("s1")
	rec.Description = "friday night"
	require.NoError(t, s.CreateSession(ctx, rec))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "friday night", got.Description)
	require.Equal(t, model.StateIdle, got.State)
	require.Equal(t, int64(1), got.NextSeq)

	got.State = model.StatePlaying
	got.CurrentTrackRef = "track:1"
	got.PlayingSince = time.Now()
	require.NoError(t, s.UpdateSession(ctx, got))

	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, model.StatePlaying, again.State)
	require.Equal(t, "track:1", again.CurrentTrackRef)
	require.False(t, again.PlayingSince.IsZero())
}

func TestSqliteGetSessionMissingReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSqliteUpdateMissingSessionFails(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateSession(context.Background(), newSessionRecord("ghost"))
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestSqliteQueueSequenceStrictlyIncreasing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	var seqs []int64
	for i := 0; i < 3; i++ {
		e := &model.QueueEntry{
			ID: "e" + string(rune('0'+i)), SessionID: "s1",
			TrackRef: "track:1", Contributor: "c1", EnqueuedAt: time.Now(),
		}
		require.NoError(t, s.Enqueue(ctx, e))
		seqs = append(seqs, e.Seq)
	}
	require.Equal(t, []int64{1, 2, 3}, seqs)

	// Consuming entries must not release their sequence numbers.
	head, err := s.Dequeue(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(1), head.Seq)

	e := &model.QueueEntry{ID: "e9", SessionID: "s1", TrackRef: "track:2", Contributor: "c1", EnqueuedAt: time.Now()}
	require.NoError(t, s.Enqueue(ctx, e))
	require.Equal(t, int64(4), e.Seq)
}

func TestSqliteSequenceSurvivesReopen(t *testing.T) {
	s, dbPath := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	e := &model.QueueEntry{ID: "e1", SessionID: "s1", TrackRef: "track:1", Contributor: "c1", EnqueuedAt: time.Now()}
	require.NoError(t, s.Enqueue(ctx, e))
	require.Equal(t, int64(1), e.Seq)

	// Drain the queue, then simulate a restart.
	_, err := s.Dequeue(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSqliteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	e2 := &model.QueueEntry{ID: "e2", SessionID: "s1", TrackRef: "track:2", Contributor: "c1", EnqueuedAt: time.Now()}
	require.NoError(t, reopened.Enqueue(ctx, e2))
	require.Equal(t, int64(2), e2.Seq)
}

func TestSqliteEnqueueUnknownSession(t *testing.T) {
	s, _ := newTestStore(t)
	e := &model.QueueEntry{ID: "e1", SessionID: "nope", TrackRef: "track:1", Contributor: "c1", EnqueuedAt: time.Now()}
	require.ErrorIs(t, s.Enqueue(context.Background(), e), model.ErrSessionNotFound)
}

func TestSqliteDequeueEmptyIsNotAnError(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	e, err := s.Dequeue(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, e)

	e, err = s.PeekNext(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestSqliteDequeueOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	for _, ref := range []string{"track:a", "track:b", "track:c"} {
		e := &model.QueueEntry{ID: ref, SessionID: "s1", TrackRef: ref, Contributor: "c1", EnqueuedAt: time.Now()}
		require.NoError(t, s.Enqueue(ctx, e))
	}

	peek, err := s.PeekNext(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "track:a", peek.TrackRef)

	var got []string
	for {
		e, err := s.Dequeue(ctx, "s1")
		require.NoError(t, err)
		if e == nil {
			break
		}
		got = append(got, e.TrackRef)
	}
	require.Equal(t, []string{"track:a", "track:b", "track:c"}, got)
}

func TestSqliteRemoveEntry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	e := &model.QueueEntry{ID: "e1", SessionID: "s1", TrackRef: "track:1", Contributor: "c1", EnqueuedAt: time.Now()}
	require.NoError(t, s.Enqueue(ctx, e))

	removed, err := s.RemoveEntry(ctx, "s1", "e1")
	require.NoError(t, err)
	require.True(t, removed)

	// Second removal is the expected already-consumed race, not an error.
	removed, err = s.RemoveEntry(ctx, "s1", "e1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestSqliteDeleteSessionCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	e := &model.QueueEntry{ID: "e1", SessionID: "s1", TrackRef: "track:1", Contributor: "c1", EnqueuedAt: time.Now()}
	require.NoError(t, s.Enqueue(ctx, e))
	require.NoError(t, s.AddParticipant(ctx, &model.Participant{SessionID: "s1", ID: "p1", DisplayName: "P1", JoinedAt: time.Now()}))

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	rec, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, rec)

	entries, err := s.ListQueue(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, entries)

	parts, err := s.ListParticipants(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, parts)
}

func TestSqliteParticipants(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateSession(ctx, newSessionRecord("s1")))

	require.NoError(t, s.AddParticipant(ctx, &model.Participant{SessionID: "s1", ID: "p1", DisplayName: "Alice", JoinedAt: time.Now()}))
	require.NoError(t, s.AddParticipant(ctx, &model.Participant{SessionID: "s1", ID: "p2", DisplayName: "Bob", JoinedAt: time.Now().Add(time.Millisecond)}))

	parts, err := s.ListParticipants(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, parts, 2)

	removed, err := s.RemoveParticipant(ctx, "s1", "p1")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.RemoveParticipant(ctx, "s1", "p1")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestSqliteIdempotency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, s.PutIdempotency(ctx, "k1", IdemRecord{EntryID: "entry-1", Seq: 7}, time.Minute))

	rec, err = s.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "entry-1", rec.EntryID)
	require.Equal(t, int64(7), rec.Seq)

	// Expired keys are treated as absent.
	require.NoError(t, s.PutIdempotency(ctx, "k2", IdemRecord{EntryID: "entry-2", Seq: 8}, -time.Second))
	rec, err = s.GetIdempotency(ctx, "k2")
	require.NoError(t, err)
	require.Nil(t, rec)
}
