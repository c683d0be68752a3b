package handraise

import (
	"net/http"

	"github.com/coachdeck/livesession/internal/httpapi"
	"github.com/coachdeck/livesession/internal/models"
)

// Service exposes the hand-raise queue over HTTP.
type Service struct {
	app *App
}

func NewService(app *App) *Service {
	return &Service{app: app}
}

// RegisterRoutes registers the queue endpoints with an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions/{sessionID}/handraises", s.handleRaise)
	mux.HandleFunc("GET /api/sessions/{sessionID}/handraises", s.handleList)
	mux.HandleFunc("DELETE /api/handraises/{id}", s.handleLower)
	mux.HandleFunc("POST /api/handraises/{id}/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("POST /api/handraises/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/handraises/{id}/extend", s.handleExtend)
	mux.HandleFunc("POST /api/handraises/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /api/handraises/{id}/dismiss", s.handleDismiss)
}

func (s *Service) handleRaise(w http.ResponseWriter, r *http.Request) {
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
		Topic *string `json:"topic,omitempty"`
	}
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.WriteError(w, err)
		return
	}

	hr, err := s.app.Raise(r.Context(), actor, sessionID, body.Topic)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, hr)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	raises, err := s.app.ListBySession(r.Context(), sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, raises)
}

func (s *Service) handleLower(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return s.app.Lower(r.Context(), actor, id)
	})
}

func (s *Service) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return s.app.Acknowledge(r.Context(), actor, id)
	})
}

func (s *Service) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return s.app.Activate(r.Context(), actor, id)
	})
}

func (s *Service) handleExtend(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		var body ExtendRequest
		if err := httpapi.DecodeJSON(r, &body); err != nil {
			return nil, err
		}
		return s.app.Extend(r.Context(), actor, id, body.Seconds)
	})
}

func (s *Service) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return s.app.Complete(r.Context(), id)
	})
}

func (s *Service) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(actor models.Actor, r *http.Request) (*models.HandRaise, error) {
		id, err := httpapi.PathUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return s.app.Dismiss(r.Context(), actor, id)
	})
}

func (s *Service) mutate(w http.ResponseWriter, r *http.Request, fn func(models.Actor, *http.Request) (*models.HandRaise, error)) {
	actor, err := httpapi.ActorFromRequest(r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	hr, err := fn(actor, r)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, hr)
}
