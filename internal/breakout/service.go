package breakout

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/httpapi"
	"github.com/coachdeck/livesession/internal/models"
)

// Service exposes breakout-room orchestration over HTTP.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the breakout endpoints with an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{sessionID}/breakouts", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{sessionID}/breakouts", s.handleList)
	mux.HandleFunc("POST /api/sessions/{sessionID}/breakouts/start", s.handleStart)
	mux.HandleFunc("POST /api/sessions/{sessionID}/breakouts/return", s.handleReturnToMain)
	mux.HandleFunc("POST /api/sessions/{sessionID}/breakouts/close", s.handleClose)
	mux.HandleFunc("POST /api/breakouts/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /api/breakouts/{id}/switch", s.handleHostSwitch)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
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
		Specs            []RoomSpec              `json:"specs"`
		AssignmentMethod models.AssignmentMethod `json:"assignment_method"`
		DurationSec      int                     `json:"duration_sec"`
	}
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	rooms, err := s.app.CreateRooms(r.Context(), actor, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            body.Specs,
		AssignmentMethod: body.AssignmentMethod,
		DurationSec:      body.DurationSec,
	})
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, rooms)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	rooms, err := s.app.ListBySession(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rooms)
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sessionMutation(w, r, s.app.StartRooms)
}

func (s *Service) handleReturnToMain(w http.ResponseWriter, r *http.Request) {
	s.sessionMutation(w, r, s.app.ReturnToMain)
}

func (s *Service) handleClose(w http.ResponseWriter, r *http.Request) {
	s.sessionMutation(w, r, s.app.Close)
}

func (s *Service) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.joinMutation(w, r, s.app.Join)
}

func (s *Service) handleHostSwitch(w http.ResponseWriter, r *http.Request) {
	s.joinMutation(w, r, s.app.HostSwitch)
}

func (s *Service) sessionMutation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor models.Actor, sessionID uuid.UUID) ([]models.BreakoutRoom, error)) {
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

	rooms, err := fn(r.Context(), actor, sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, rooms)
}

func (s *Service) joinMutation(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor models.Actor, roomID uuid.UUID) (*JoinGrant, error)) {
	actor, err := httpapi.ActorFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	roomID, err := httpapi.PathUUID(r, "id")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	grant, err := fn(r.Context(), actor, roomID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, grant)
}
