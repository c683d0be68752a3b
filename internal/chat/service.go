package chat

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/httpapi"
	"github.com/coachdeck/livesession/internal/models"
)

// Service exposes the session chat channel over HTTP.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the chat endpoints with an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{sessionID}/messages", s.handleSend)
	mux.HandleFunc("GET /api/sessions/{sessionID}/messages", s.handleList)
	mux.HandleFunc("POST /api/messages/{id}/pin", s.handlePin)
	mux.HandleFunc("POST /api/messages/{id}/unpin", s.handleUnpin)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleDelete)
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	actor, err := httpapi.ActorFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	var body struct {
		BreakoutRoomID *uuid.UUID        `json:"breakout_room_id,omitempty"`
		Message        string            `json:"message"`
		Metadata       map[string]string `json:"metadata,omitempty"`
	}
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	msg, err := s.app.Send(r.Context(), actor, sessionID, body.BreakoutRoomID, body.Message, body.Metadata)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, msg)
}

// handleList serves one scope by default (main room), a single breakout room
// via ?room_id=, or every scope at once via ?scope=all.
func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("scope") == "all" {
		msgs, err := s.app.ListBySession(r.Context(), sessionID)
		if err != nil {
			httpapi.WriteError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, msgs)
		return
	}

	var roomID *uuid.UUID
	if raw := r.URL.Query().Get("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.WriteError(w, apperrors.Validation("room_id", "invalid room_id %q", raw))
			return
		}
		roomID = &id
	}

	msgs, err := s.app.ListByScope(r.Context(), sessionID, roomID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, msgs)
}

func (s *Service) handlePin(w http.ResponseWriter, r *http.Request) {
	s.flagMutation(w, r, s.app.Pin)
}

func (s *Service) handleUnpin(w http.ResponseWriter, r *http.Request) {
	s.flagMutation(w, r, s.app.Unpin)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.flagMutation(w, r, s.app.Delete)
}

func (s *Service) flagMutation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.SessionChatMessage, error)) {
	actor, err := httpapi.ActorFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	id, err := httpapi.PathUUID(r, "id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	msg, err := fn(r.Context(), actor, id)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, msg)
}
