package participant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdeck/livesession/internal/models"
)

// Repository persists the session roster. The composite primary key on
// (session_id, user_id) makes registration an idempotent upsert.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const participantColumns = `session_id, user_id, user_name, is_host, joined_at`

func (r *Repository) Upsert(ctx context.Context, sessionID uuid.UUID, actor models.Actor) (*models.SessionParticipant, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO session_participants (session_id, user_id, user_name, is_host, joined_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id, user_id)
		DO UPDATE SET user_name = EXCLUDED.user_name, is_host = EXCLUDED.is_host
		RETURNING `+participantColumns,
		sessionID, actor.UserID, actor.UserName, actor.IsHost,
	)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert participant: %w", err)
	}
	return p, nil
}

func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionParticipant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE session_id = $1
		ORDER BY joined_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.SessionParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanParticipant(row pgx.Row) (*models.SessionParticipant, error) {
	var p models.SessionParticipant
	err := row.Scan(&p.SessionID, &p.UserID, &p.UserName, &p.IsHost, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
