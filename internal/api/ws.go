// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jamcast/jamd/internal/log"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleEvents upgrades the connection and streams SessionChanged events to
// the participant. The current snapshot is sent first, since published events
// are not replayed for late subscribers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	participantID := r.URL.Query().Get("participantId")

	// Resolve before upgrading so a missing session is an HTTP 404, not a
	// dropped socket.
	snap, err := s.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	sub, err := s.engine.SubscribeEvents(sessionID, participantID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		return
	}

	logger := s.logger.With().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldParticipantID, participantID).
		Logger()
	logger.Debug().Str("event", "ws.subscribed").Msg("subscriber connected")

	// Reader: its only job is to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		sub.Close()
		_ = conn.Close()
		// Disconnect implies leave: drop the membership row along with the
		// subscription. Best-effort, the session may already be gone. The
		// request context is dead at this point, so use a fresh one.
		if participantID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			defer cancel()
			if err := s.engine.Leave(ctx, sessionID, participantID); err != nil {
				logger.Debug().Err(err).Str("event", "ws.leave_failed").Msg("could not remove participant on disconnect")
			}
		}
		logger.Debug().Str("event", "ws.unsubscribed").Msg("subscriber disconnected")
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(map[string]any{"op": "snapshot", "session": snap}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				// Session torn down; tell the client before hanging up.
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
