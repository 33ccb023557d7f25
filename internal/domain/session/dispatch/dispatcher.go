// SPDX-License-Identifier: MIT

// Package dispatch fans session state changes out to live subscribers.
package dispatch

import (
	"sync"

	"github.com/jamcast/jamd/internal/domain/session/model"
	"github.com/jamcast/jamd/internal/log"
	"github.com/jamcast/jamd/internal/metrics"
)

// Dispatcher tracks per-session subscriber sets and delivers every published
// SessionChanged event to each of them. Delivery is best-effort: a slow
// subscriber's full buffer causes a dropped-and-logged event for that
// subscriber only, never backpressure on the publisher.
type Dispatcher struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// New creates a Dispatcher with the given per-subscriber buffer capacity.
func New(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &Dispatcher{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is one subscriber's handle. Close is idempotent.
type Subscription struct {
	d           *Dispatcher
	sessionID   string
	participant string
	ch          chan model.SessionChanged
	once        sync.Once
}

// C returns the subscriber's event channel. It is closed on Close and when
// the session is torn down.
func (s *Subscription) C() <-chan model.SessionChanged {
	return s.ch
}

// SessionID reports which session this subscription belongs to.
func (s *Subscription) SessionID() string { return s.sessionID }

// Close detaches the subscription and closes its channel. Closing twice is a
// no-op.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.d.mu.Lock()
		if set, ok := s.d.subs[s.sessionID]; ok {
			if _, member := set[s]; member {
				delete(set, s)
				metrics.SubscribersActive.Dec()
			}
			if len(set) == 0 {
				delete(s.d.subs, s.sessionID)
			}
		}
		// Closed under the write lock so Publish, which sends under the read
		// lock, can never hit a closed channel.
		close(s.ch)
		s.d.mu.Unlock()
	})
}

// Subscribe registers a listener for the session's event stream. Events
// published before the subscription are not replayed; callers wanting current
// state must fetch a snapshot separately.
func (d *Dispatcher) Subscribe(sessionID, participantID string) *Subscription {
	sub := &Subscription{
		d:           d,
		sessionID:   sessionID,
		participant: participantID,
		ch:          make(chan model.SessionChanged, d.buffer),
	}

	d.mu.Lock()
	if d.subs[sessionID] == nil {
		d.subs[sessionID] = make(map[*Subscription]struct{})
	}
	d.subs[sessionID][sub] = struct{}{}
	d.mu.Unlock()

	metrics.SubscribersActive.Inc()
	return sub
}

// Publish delivers ev to every subscriber registered at call time.
func (d *Dispatcher) Publish(ev model.SessionChanged) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for sub := range d.subs[ev.SessionID] {
		// Non-blocking send keeps slow subscribers off the publisher's
		// critical path.
		select {
		case sub.ch <- ev:
			metrics.DispatchDeliveredTotal.Inc()
		default:
			metrics.IncDispatchDrop("buffer_full")
			logger := log.WithComponent("dispatch")
			logger.Warn().
				Str(log.FieldSessionID, ev.SessionID).
				Str(log.FieldParticipantID, sub.participant).
				Str(log.FieldOp, ev.Op).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// DropSession closes every subscription of a torn-down session.
func (d *Dispatcher) DropSession(sessionID string) {
	d.mu.RLock()
	targets := make([]*Subscription, 0, len(d.subs[sessionID]))
	for sub := range d.subs[sessionID] {
		targets = append(targets, sub)
	}
	d.mu.RUnlock()

	for _, sub := range targets {
		sub.Close()
	}
}

// SubscriberCount reports the live subscriber count for a session.
func (d *Dispatcher) SubscriberCount(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[sessionID])
}
