package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdeck/livesession/internal/events"
)

// Repository persists outbox rows. A database trigger on session_outbox sends
// a NOTIFY on the session_outbox_events channel with the row id, which the
// Listener picks up.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertEntityChange(ctx context.Context, sessionID uuid.UUID, entityType events.EntityType, kind events.ChangeKind, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_outbox (id, session_id, entity_type, change_kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		uuid.New(), sessionID, string(entityType), string(kind), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, session_id, entity_type, change_kind, payload, created_at, sent_at
		FROM session_outbox
		WHERE id = $1`,
		id,
	)
	ev, err := scanOutboxEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("outbox event %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	return ev, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, entity_type, change_kind, payload, created_at, sent_at
		FROM session_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		ev, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE session_outbox SET sent_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event sent: %w", err)
	}
	return nil
}

func scanOutboxEvent(row pgx.Row) (*OutboxEvent, error) {
	var ev OutboxEvent
	var entityType, changeKind string
	if err := row.Scan(&ev.ID, &ev.SessionID, &entityType, &changeKind, &ev.Payload, &ev.CreatedAt, &ev.SentAt); err != nil {
		return nil, err
	}
	ev.EntityType = events.EntityType(entityType)
	ev.ChangeKind = events.ChangeKind(changeKind)
	return &ev, nil
}
