package chat

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

// ChatRepository defines what the app layer needs from the repository.
type ChatRepository interface {
	CreateMessage(ctx context.Context, req SendMessageRequest) (*models.SessionChatMessage, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*models.SessionChatMessage, error)
	ListByScope(ctx context.Context, sessionID uuid.UUID, roomID *uuid.UUID) ([]models.SessionChatMessage, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionChatMessage, error)
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool) (*models.SessionChatMessage, error)
	SetDeleted(ctx context.Context, id uuid.UUID) (*models.SessionChatMessage, error)
}

// OutboxApp defines what the app layer needs from the outbox.
type OutboxApp interface {
	RecordChatMessageChange(ctx context.Context, kind events.ChangeKind, msg *models.SessionChatMessage) error
}

// App handles chat-channel business logic.
type App struct {
	repo   ChatRepository
	outbox OutboxApp
}

func NewApp(repo ChatRepository, outbox OutboxApp) *App {
	return &App{repo: repo, outbox: outbox}
}

// Send validates and appends a message to the given scope. Length violations
// are rejected before the repository is touched.
func (a *App) Send(ctx context.Context, actor models.Actor, sessionID uuid.UUID, roomID *uuid.UUID, message string, metadata map[string]string) (*models.SessionChatMessage, error) {
	if err := ValidateMessage(message); err != nil {
		return nil, err
	}

	msg, err := a.repo.CreateMessage(ctx, SendMessageRequest{
		ID:             uuid.New(),
		SessionID:      sessionID,
		BreakoutRoomID: roomID,
		Message:        message,
		SenderID:       actor.UserID,
		SenderName:     actor.UserName,
		IsHostMessage:  actor.IsHost,
		Metadata:       metadata,
	})
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindInsert, msg)
	return msg, nil
}

// Pin marks a message pinned. Host only.
func (a *App) Pin(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.SessionChatMessage, error) {
	return a.setPinned(ctx, actor, id, true)
}

// Unpin clears the pinned flag. Host only.
func (a *App) Unpin(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.SessionChatMessage, error) {
	return a.setPinned(ctx, actor, id, false)
}

// Delete soft-deletes a message: the row is retained, only the flag flips.
// Host only.
func (a *App) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.SessionChatMessage, error) {
	if !actor.IsHost {
		return nil, apperrors.Conflict("chat_message", "only the host may delete messages")
	}

	msg, err := a.repo.SetDeleted(ctx, id)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, msg)
	return msg, nil
}

// ListByScope returns messages for one scope.
func (a *App) ListByScope(ctx context.Context, sessionID uuid.UUID, roomID *uuid.UUID) ([]models.SessionChatMessage, error) {
	return a.repo.ListByScope(ctx, sessionID, roomID)
}

// ListBySession returns every message in the session.
func (a *App) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionChatMessage, error) {
	return a.repo.ListBySession(ctx, sessionID)
}

func (a *App) setPinned(ctx context.Context, actor models.Actor, id uuid.UUID, pinned bool) (*models.SessionChatMessage, error) {
	if !actor.IsHost {
		return nil, apperrors.Conflict("chat_message", "only the host may pin messages")
	}

	msg, err := a.repo.SetPinned(ctx, id, pinned)
	if err != nil {
		return nil, err
	}

	a.recordChange(ctx, events.ChangeKindUpdate, msg)
	return msg, nil
}

func (a *App) recordChange(ctx context.Context, kind events.ChangeKind, msg *models.SessionChatMessage) {
	if err := a.outbox.RecordChatMessageChange(ctx, kind, msg); err != nil {
		// The fallback poll delivers the change; don't fail the mutation.
		log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to record message change")
	}
}

// ValidateMessage enforces the 1-500 character bounds. The client core runs
// the same check before issuing any request.
func ValidateMessage(message string) error {
	n := utf8.RuneCountInString(message)
	if n < models.ChatMessageMinLen {
		return apperrors.Validation("chat_message", "message must not be empty")
	}
	if n > models.ChatMessageMaxLen {
		return apperrors.Validation("chat_message", "message exceeds %d characters", models.ChatMessageMaxLen)
	}
	return nil
}
