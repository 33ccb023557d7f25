// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jamcast/jamd/internal/domain/session/model"
)

// MemoryStore is an in-memory Store used for unit tests and local
// prototyping. It honors the same sequence-number guarantees as the SQLite
// store but is not durable.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[string]*model.SessionRecord
	queues       map[string][]*model.QueueEntry // kept sorted by seq
	participants map[string]map[string]*model.Participant
	idempotency  map[string]idemRecord
}

type idemRecord struct {
	rec       IdemRecord
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*model.SessionRecord),
		queues:       make(map[string][]*model.QueueEntry),
		participants: make(map[string]map[string]*model.Participant),
		idempotency:  make(map[string]idemRecord),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateSession(_ context.Context, rec *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.sessions[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) UpdateSession(_ context.Context, rec *model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[rec.ID]
	if !ok {
		return model.ErrSessionNotFound
	}
	rec.UpdatedAt = time.Now()
	// NextSeq is owned by Enqueue; do not let a stale caller copy rewind it.
	if rec.NextSeq < existing.NextSeq {
		rec.NextSeq = existing.NextSeq
	}
	cp := *rec
	m.sessions[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.queues, id)
	delete(m.participants, id)
	return nil
}

func (m *MemoryStore) Enqueue(_ context.Context, e *model.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[e.SessionID]
	if !ok {
		return model.ErrSessionNotFound
	}
	e.Seq = rec.NextSeq
	rec.NextSeq++
	cp := *e
	m.queues[e.SessionID] = append(m.queues[e.SessionID], &cp)
	return nil
}

func (m *MemoryStore) PeekNext(_ context.Context, sessionID string) (*model.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[sessionID]
	if len(q) == 0 {
		return nil, nil
	}
	cp := *q[0]
	return &cp, nil
}

func (m *MemoryStore) Dequeue(_ context.Context, sessionID string) (*model.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[sessionID]
	if len(q) == 0 {
		return nil, nil
	}
	head := q[0]
	m.queues[sessionID] = q[1:]
	cp := *head
	return &cp, nil
}

func (m *MemoryStore) RemoveEntry(_ context.Context, sessionID, entryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[sessionID]
	for i, e := range q {
		if e.ID == entryID {
			m.queues[sessionID] = append(q[:i:i], q[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ListQueue(_ context.Context, sessionID string) ([]*model.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[sessionID]
	out := make([]*model.QueueEntry, 0, len(q))
	for _, e := range q {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) AddParticipant(_ context.Context, p *model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.participants[p.SessionID] == nil {
		m.participants[p.SessionID] = make(map[string]*model.Participant)
	}
	cp := *p
	m.participants[p.SessionID][p.ID] = &cp
	return nil
}

func (m *MemoryStore) RemoveParticipant(_ context.Context, sessionID, participantID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.participants[sessionID]
	if !ok {
		return false, nil
	}
	if _, ok := members[participantID]; !ok {
		return false, nil
	}
	delete(members, participantID)
	return true, nil
}

func (m *MemoryStore) ListParticipants(_ context.Context, sessionID string) ([]*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.participants[sessionID]
	out := make([]*model.Participant, 0, len(members))
	for _, p := range members {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (m *MemoryStore) GetIdempotency(_ context.Context, key string) (*IdemRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.idempotency[key]
	if !ok || time.Now().After(stored.expiresAt) {
		return nil, nil
	}
	cp := stored.rec
	return &cp, nil
}

func (m *MemoryStore) PutIdempotency(_ context.Context, key string, rec IdemRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idempotency[key] = idemRecord{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

var _ Store = (*MemoryStore)(nil)
