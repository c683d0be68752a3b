package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

// OutboxRepository defines what the app layer needs from the repository.
type OutboxRepository interface {
	InsertEntityChange(ctx context.Context, sessionID uuid.UUID, entityType events.EntityType, kind events.ChangeKind, payload []byte) error
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
}

// App records entity changes for publication. Domain services call it after
// every successful mutation; failures here are logged by callers, never
// failing the mutation itself.
type App struct {
	repo OutboxRepository
}

func NewApp(repo OutboxRepository) *App {
	return &App{repo: repo}
}

// RecordHandRaiseChange records a hand-raise insert/update for broadcast.
func (a *App) RecordHandRaiseChange(ctx context.Context, kind events.ChangeKind, hr *models.HandRaise) error {
	return a.record(ctx, hr.SessionID, events.EntityTypeHandRaise, kind, hr)
}

// RecordBreakoutRoomChange records a breakout-room change for broadcast.
func (a *App) RecordBreakoutRoomChange(ctx context.Context, kind events.ChangeKind, room *models.BreakoutRoom) error {
	return a.record(ctx, room.SessionID, events.EntityTypeBreakoutRoom, kind, room)
}

// RecordChatMessageChange records a chat-message change for broadcast.
func (a *App) RecordChatMessageChange(ctx context.Context, kind events.ChangeKind, msg *models.SessionChatMessage) error {
	return a.record(ctx, msg.SessionID, events.EntityTypeChatMessage, kind, msg)
}

func (a *App) record(ctx context.Context, sessionID uuid.UUID, entityType events.EntityType, kind events.ChangeKind, entity any) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", entityType, err)
	}

	if err := a.repo.InsertEntityChange(ctx, sessionID, entityType, kind, payload); err != nil {
		return fmt.Errorf("failed to insert %s change: %w", entityType, err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("entity_type", string(entityType)).
		Str("change_kind", string(kind)).
		Msg("outbox event inserted")

	return nil
}
