// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

type participantRequest struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
}

type enqueueRequest struct {
	ParticipantID  string `json:"participantId"`
	TrackRef       string `json:"trackRef"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_command", Message: "malformed JSON body"})
		return
	}
	snap, err := s.engine.CreateSession(r.Context(), req.Name, req.Description, req.Owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.engine.ListSessions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": snaps})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CloseSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_command", Message: "malformed JSON body"})
		return
	}
	sessionID := chi.URLParam(r, "id")
	if err := s.engine.Join(r.Context(), sessionID, req.ParticipantID, req.DisplayName); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_command", Message: "malformed JSON body"})
		return
	}
	if err := s.engine.Leave(r.Context(), chi.URLParam(r, "id"), req.ParticipantID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_command", Message: "malformed JSON body"})
		return
	}
	if !s.enqueueAllowed(req.ParticipantID) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "enqueue rate exceeded"})
		return
	}
	entry, err := s.engine.Enqueue(r.Context(), chi.URLParam(r, "id"), req.ParticipantID, req.TrackRef, req.IdempotencyKey)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"entryId":  entry.ID,
		"trackRef": entry.TrackRef,
		"seq":      entry.Seq,
	})
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	removed, err := s.engine.RemoveEntry(r.Context(), chi.URLParam(r, "id"), participantID, chi.URLParam(r, "entry"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	// A vanished entry is an expected race with queue advancement.
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.handleSimpleCommand(w, r, s.engine.Play)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleSimpleCommand(w, r, s.engine.Pause)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.handleSimpleCommand(w, r, s.engine.Skip)
}

func (s *Server) handleTrackEnded(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := s.engine.TrackEnded(r.Context(), sessionID); err != nil {
		writeEngineError(w, err)
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSimpleCommand(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, sessionID, participantID string) error) {
	var req participantRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_command", Message: "malformed JSON body"})
		return
	}
	sessionID := chi.URLParam(r, "id")
	if err := cmd(r.Context(), sessionID, req.ParticipantID); err != nil {
		writeEngineError(w, err)
		return
	}
	snap, err := s.engine.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
