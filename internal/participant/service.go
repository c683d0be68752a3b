package participant

import (
	"net/http"

	"github.com/coachdeck/livesession/internal/httpapi"
)

// Service exposes the session roster over HTTP.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the roster endpoints with an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{sessionID}/participants", s.handleRegister)
	mux.HandleFunc("GET /api/sessions/{sessionID}/participants", s.handleList)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
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

	p, err := s.app.Register(r.Context(), actor, sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, p)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	participants, err := s.app.ListBySession(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, participants)
}
