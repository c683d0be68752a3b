package handraise

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

const maxTopicLen = 100

// HandRaiseRepository defines what the app layer needs from the repository.
type HandRaiseRepository interface {
	CreateHandRaise(ctx context.Context, req CreateHandRaiseRequest) (*models.HandRaise, error)
	GetHandRaise(ctx context.Context, id uuid.UUID) (*models.HandRaise, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.HandRaise, error)
	Acknowledge(ctx context.Context, id uuid.UUID) (*models.HandRaise, error)
	Activate(ctx context.Context, id uuid.UUID) (*models.HandRaise, error)
	Lower(ctx context.Context, id, userID uuid.UUID) (*models.HandRaise, error)
	Extend(ctx context.Context, id uuid.UUID, seconds int) (*models.HandRaise, error)
	Complete(ctx context.Context, id uuid.UUID) (*models.HandRaise, error)
	Dismiss(ctx context.Context, id uuid.UUID) (*models.HandRaise, error)
}

// OutboxApp defines what the app layer needs from the outbox.
type OutboxApp interface {
	RecordHandRaiseChange(ctx context.Context, kind events.ChangeKind, hr *models.HandRaise) error
}

// App handles hand-raise queue business logic.
type App struct {
	repo   HandRaiseRepository
	outbox OutboxApp
}

func NewApp(repo HandRaiseRepository, outbox OutboxApp) *App {
	return &App{repo: repo, outbox: outbox}
}

// Raise adds the actor to the session queue. Fails with Conflict when the
// actor already has a non-terminal hand raise.
func (a *App) Raise(ctx context.Context, actor models.Actor, sessionID uuid.UUID, topic *string) (*models.HandRaise, error) {
	if topic != nil && utf8.RuneCountInString(*topic) > maxTopicLen {
		return nil, apperrors.Validation("hand_raise", "topic exceeds %d characters", maxTopicLen)
	}

	hr, err := a.repo.CreateHandRaise(ctx, CreateHandRaiseRequest{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		UserID:             actor.UserID,
		UserName:           actor.UserName,
		Topic:              topic,
		HotSeatDurationSec: models.DefaultHotSeatDurationSec,
	})
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindInsert, hr)
	return hr, nil
}

// Lower withdraws the actor's own hand raise before it is activated.
func (a *App) Lower(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.HandRaise, error) {
	hr, err := a.repo.Lower(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindDelete, hr)
	return hr, nil
}

// Acknowledge marks a raised hand as seen by the host without reordering the queue.
func (a *App) Acknowledge(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.HandRaise, error) {
	if err := requireHost(actor, "acknowledge"); err != nil {
		return nil, err
	}

	hr, err := a.repo.Acknowledge(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, hr)
	return hr, nil
}

// Activate puts the hand raise on the hot seat and starts its countdown.
func (a *App) Activate(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.HandRaise, error) {
	if err := requireHost(actor, "activate"); err != nil {
		return nil, err
	}

	hr, err := a.repo.Activate(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, hr)
	return hr, nil
}

// Extend adds seconds to the active hot seat.
func (a *App) Extend(ctx context.Context, actor models.Actor, id uuid.UUID, seconds int) (*models.HandRaise, error) {
	if err := requireHost(actor, "extend"); err != nil {
		return nil, err
	}
	if seconds <= 0 {
		return nil, apperrors.Validation("hand_raise", "extension must be positive, got %d", seconds)
	}

	hr, err := a.repo.Extend(ctx, id, seconds)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, hr)
	return hr, nil
}

// Complete finishes the active hot seat, clearing the session's active slot.
func (a *App) Complete(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, err := a.repo.Complete(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, hr)
	return hr, nil
}

// Dismiss removes a hand raise from any non-terminal state.
func (a *App) Dismiss(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.HandRaise, error) {
	if err := requireHost(actor, "dismiss"); err != nil {
		return nil, err
	}

	hr, err := a.repo.Dismiss(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, hr)
	return hr, nil
}

// GetHandRaise retrieves a hand raise by ID.
func (a *App) GetHandRaise(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	return a.repo.GetHandRaise(ctx, id)
}

// ListBySession returns all hand raises for a session, including terminal ones.
func (a *App) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.HandRaise, error) {
	return a.repo.ListBySession(ctx, sessionID)
}

func (a *App) recordChange(ctx context.Context, kind events.ChangeKind, hr *models.HandRaise) {
	if err := a.outbox.RecordHandRaiseChange(ctx, kind, hr); err != nil {
		// The fallback poll delivers the change; don't fail the mutation.
		log.Error().Err(err).Str("hand_raise_id", hr.ID.String()).Msg("failed to record hand raise change")
	}
}

func requireHost(actor models.Actor, op string) error {
	if !actor.IsHost {
		return apperrors.Conflict("hand_raise", "only the host may %s", op)
	}
	return nil
}
