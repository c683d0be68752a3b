package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/models"
)

// Repository persists chat messages. Content is immutable after insert; only
// the pin and delete flags ever change.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const messageColumns = `id, session_id, breakout_room_id, message, sender_id, sender_name,
	sent_at, is_host_message, is_pinned, is_deleted, metadata, updated_at`

func (r *Repository) CreateMessage(ctx context.Context, req SendMessageRequest) (*models.SessionChatMessage, error) {
	metadata, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO session_chat_messages (id, session_id, breakout_room_id, message, sender_id,
			sender_name, sent_at, is_host_message, is_pinned, is_deleted, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, false, false, $8, now())
		RETURNING `+messageColumns,
		req.ID, req.SessionID, req.BreakoutRoomID, req.Message, req.SenderID,
		req.SenderName, req.IsHostMessage, metadata,
	)
	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	return msg, nil
}

func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*models.SessionChatMessage, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM session_chat_messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("chat_message", "message %s not found", id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListByScope returns the session's messages for one scope: main room when
// roomID is nil, one breakout room otherwise. Deleted messages are included;
// projections exclude them from rendering.
func (r *Repository) ListByScope(ctx context.Context, sessionID uuid.UUID, roomID *uuid.UUID) ([]models.SessionChatMessage, error) {
	query := `SELECT ` + messageColumns + `
		FROM session_chat_messages
		WHERE session_id = $1 AND breakout_room_id IS NULL
		ORDER BY sent_at`
	args := []any{sessionID}
	if roomID != nil {
		query = `SELECT ` + messageColumns + `
		FROM session_chat_messages
		WHERE session_id = $1 AND breakout_room_id = $2
		ORDER BY sent_at`
		args = append(args, *roomID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListBySession returns every message in the session across all scopes.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM session_chat_messages
		WHERE session_id = $1
		ORDER BY sent_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *Repository) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) (*models.SessionChatMessage, error) {
	return r.setFlag(ctx, id, `is_pinned`, pinned)
}

func (r *Repository) SetDeleted(ctx context.Context, id uuid.UUID) (*models.SessionChatMessage, error) {
	return r.setFlag(ctx, id, `is_deleted`, true)
}

func (r *Repository) setFlag(ctx context.Context, id uuid.UUID, column string, value bool) (*models.SessionChatMessage, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE session_chat_messages
		SET `+column+` = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns,
		id, value,
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("chat_message", "message %s not found", id)
		}
		return nil, fmt.Errorf("failed to update message flag: %w", err)
	}
	return msg, nil
}

func marshalMetadata(metadata map[string]string) (pqtype.NullRawMessage, error) {
	if metadata == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func collectMessages(rows pgx.Rows) ([]models.SessionChatMessage, error) {
	var out []models.SessionChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*models.SessionChatMessage, error) {
	var msg models.SessionChatMessage
	var metadata pqtype.NullRawMessage
	err := row.Scan(
		&msg.ID, &msg.SessionID, &msg.BreakoutRoomID, &msg.Message, &msg.SenderID, &msg.SenderName,
		&msg.SentAt, &msg.IsHostMessage, &msg.IsPinned, &msg.IsDeleted, &metadata, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata.Valid {
		if err := json.Unmarshal(metadata.RawMessage, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}
