// Package httpapi holds the JSON helpers and caller-identity parsing shared by
// the coordinator's HTTP services.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/models"
)

// Identity headers set by the upstream auth proxy. Session-cookie issuance is
// out of scope; in production these come from a verified token.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
	HeaderRole     = "X-Session-Role"

	RoleHost = "host"
)

// ActorFromRequest extracts the caller identity from the request headers.
func ActorFromRequest(r *http.Request) (models.Actor, error) {
	userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
	if err != nil {
		return models.Actor{}, apperrors.Validation("actor", "missing or invalid %s header", HeaderUserID)
	}
	return models.Actor{
		UserID:   userID,
		UserName: r.Header.Get(HeaderUserName),
		IsHost:   r.Header.Get(HeaderRole) == RoleHost,
	}, nil
}

// PathUUID parses the named path segment as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation(name, "invalid %s %q", name, r.PathValue(name))
	}
	return id, nil
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("request", "invalid JSON body: %v", err)
	}
	return nil
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Kind  apperrors.Kind `json:"kind"`
	Error string         `json:"error"`
}

// WriteError maps err through the apperrors taxonomy and writes it.
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
	}
	WriteJSON(w, status, ErrorBody{Kind: apperrors.KindOf(err), Error: err.Error()})
}
