// Package participant maintains the session roster: who is in the session,
// under what name, and whether they host it. Random breakout assignment
// distributes this roster, so a participant who never registers is invisible
// to it.
package participant

import (
	"context"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/models"
)

// ParticipantRepository defines what the app layer needs from the repository.
type ParticipantRepository interface {
	Upsert(ctx context.Context, sessionID uuid.UUID, actor models.Actor) (*models.SessionParticipant, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionParticipant, error)
}

type App struct {
	repo ParticipantRepository
}

func NewApp(repo ParticipantRepository) *App {
	return &App{repo: repo}
}

// Register adds the caller to the session roster, or refreshes the existing
// entry. Idempotent, so clients call it on every (re)connect.
func (a *App) Register(ctx context.Context, actor models.Actor, sessionID uuid.UUID) (*models.SessionParticipant, error) {
	if actor.UserName == "" {
		return nil, apperrors.Validation("participant", "user name is required")
	}
	return a.repo.Upsert(ctx, sessionID, actor)
}

// ListBySession returns the session roster ordered by join time.
func (a *App) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionParticipant, error) {
	return a.repo.ListBySession(ctx, sessionID)
}
