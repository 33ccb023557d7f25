// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jamcast/jamd/internal/domain/session/model"
)

func TestMemorySequenceNeverReused(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, newSessionRecord("s1")))

	e1 := &model.QueueEntry{ID: "e1", SessionID: "s1", TrackRef: "track:1", Contributor: "c1"}
	require.NoError(t, m.Enqueue(ctx, e1))
	require.Equal(t, int64(1), e1.Seq)

	removed, err := m.RemoveEntry(ctx, "s1", "e1")
	require.NoError(t, err)
	require.True(t, removed)

	e2 := &model.QueueEntry{ID: "e2", SessionID: "s1", TrackRef: "track:2", Contributor: "c1"}
	require.NoError(t, m.Enqueue(ctx, e2))
	require.Equal(t, int64(2), e2.Seq)
}

func TestMemoryUpdateCannotRewindSequence(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, newSessionRecord("s1")))

	// Load a record copy, then enqueue so the store's counter moves on.
	stale, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)

	e := &model.QueueEntry{ID: "e1", SessionID: "s1", TrackRef: "track:1", Contributor: "c1"}
	require.NoError(t, m.Enqueue(ctx, e))

	require.NoError(t, m.UpdateSession(ctx, stale))

	e2 := &model.QueueEntry{ID: "e2", SessionID: "s1", TrackRef: "track:2", Contributor: "c1"}
	require.NoError(t, m.Enqueue(ctx, e2))
	require.Equal(t, int64(2), e2.Seq)
}

func TestMemoryDequeueConcurrentConsumesEachEntryOnce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, newSessionRecord("s1")))

	const n = 50
	for i := 0; i < n; i++ {
		e := &model.QueueEntry{ID: uuidLike(i), SessionID: "s1", TrackRef: "track", Contributor: "c1"}
		require.NoError(t, m.Enqueue(ctx, e))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := m.Dequeue(ctx, "s1")
			if err != nil {
				errs <- err
				return
			}
			if e != nil {
				mu.Lock()
				seen[e.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, seen, n)
	for id, count := range seen {
		require.Equal(t, 1, count, "entry %s consumed more than once", id)
	}
}

func TestMemoryCopiesAreIsolated(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, newSessionRecord("s1")))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.Name = "mutated locally"

	again, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "test session", again.Name)
}

func TestMemoryIdempotencyExpiry(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.PutIdempotency(ctx, "k", IdemRecord{EntryID: "e1", Seq: 1}, 20*time.Millisecond))
	rec, err := m.GetIdempotency(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "e1", rec.EntryID)

	time.Sleep(40 * time.Millisecond)
	rec, err = m.GetIdempotency(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func uuidLike(i int) string {
	return "entry-" + string(rune('a'+i%26)) + "-" + string(rune('0'+i/26))
}
