package handraise

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/models"
)

// Repository persists hand raises. The queue invariants live in the SQL
// guards: a partial unique index on (session_id, user_id) over non-terminal
// rows, and conditional updates that fail with zero rows when a transition is
// not allowed. Races between concurrent clients therefore resolve to exactly
// one winner inside Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const handRaiseColumns = `id, session_id, user_id, user_name, topic, status,
	raised_at, hot_seat_started_at, hot_seat_duration_sec, time_extended_sec, updated_at`

const uniqueViolation = "23505"

func (r *Repository) CreateHandRaise(ctx context.Context, req CreateHandRaiseRequest) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO hand_raises (id, session_id, user_id, user_name, topic, status,
			raised_at, hot_seat_duration_sec, time_extended_sec, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7, 0, now())
		RETURNING `+handRaiseColumns,
		req.ID, req.SessionID, req.UserID, req.UserName, req.Topic,
		models.HandRaiseStatusRaised, req.HotSeatDurationSec,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperrors.Conflict("hand_raise", "user %s already has a pending hand raise", req.UserID)
		}
		return nil, fmt.Errorf("failed to create hand raise: %w", err)
	}
	return hr, nil
}

func (r *Repository) GetHandRaise(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+handRaiseColumns+` FROM hand_raises WHERE id = $1`, id)
	hr, err := scanHandRaise(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
		}
		return nil, fmt.Errorf("failed to get hand raise: %w", err)
	}
	return hr, nil
}

// ListBySession returns every hand raise in the session, terminal records
// included; projections filter the live queue view.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.HandRaise, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+handRaiseColumns+`
		FROM hand_raises
		WHERE session_id = $1
		ORDER BY raised_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list hand raises: %w", err)
	}
	defer rows.Close()

	var out []models.HandRaise
	for rows.Next() {
		hr, err := scanHandRaise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hand raise: %w", err)
		}
		out = append(out, *hr)
	}
	return out, rows.Err()
}

func (r *Repository) Acknowledge(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hand_raises
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+handRaiseColumns,
		id, models.HandRaiseStatusAcknowledged, models.HandRaiseStatusRaised,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		return nil, r.mutationFailure(ctx, id, "acknowledge", err)
	}
	return hr, nil
}

// Activate puts the hand raise on the hot seat. The NOT EXISTS guard keeps at
// most one ACTIVE hand raise per session; the losing call of a race gets zero
// rows and resolves to a Conflict.
func (r *Repository) Activate(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hand_raises hr
		SET status = $2, hot_seat_started_at = now(), updated_at = now()
		WHERE hr.id = $1 AND hr.status IN ($3, $4)
		AND NOT EXISTS (
			SELECT 1 FROM hand_raises other
			WHERE other.session_id = hr.session_id AND other.status = $2
		)
		RETURNING `+handRaiseColumns,
		id, models.HandRaiseStatusActive,
		models.HandRaiseStatusRaised, models.HandRaiseStatusAcknowledged,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to activate hand raise: %w", err)
		}
		existing, getErr := r.GetHandRaise(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.Status.InQueue() {
			// The row itself was activatable, so the NOT EXISTS guard fired.
			return nil, apperrors.Conflict("hand_raise", "session %s already has an active hand raise", existing.SessionID)
		}
		return nil, apperrors.Conflict("hand_raise", "cannot activate hand raise %s with status %s", id, existing.Status)
	}
	return hr, nil
}

// Lower removes a not-yet-activated hand raise. Only the raising user may
// lower, and only before activation.
func (r *Repository) Lower(ctx context.Context, id, userID uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		DELETE FROM hand_raises
		WHERE id = $1 AND user_id = $2 AND status IN ($3, $4)
		RETURNING `+handRaiseColumns,
		id, userID, models.HandRaiseStatusRaised, models.HandRaiseStatusAcknowledged,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to lower hand raise: %w", err)
		}
		existing, getErr := r.GetHandRaise(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing.UserID != userID {
			return nil, apperrors.Conflict("hand_raise", "only the raising user may lower %s", id)
		}
		return nil, apperrors.Conflict("hand_raise", "cannot lower hand raise %s with status %s", id, existing.Status)
	}
	return hr, nil
}

func (r *Repository) Extend(ctx context.Context, id uuid.UUID, seconds int) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hand_raises
		SET time_extended_sec = time_extended_sec + $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+handRaiseColumns,
		id, seconds, models.HandRaiseStatusActive,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		return nil, r.mutationFailure(ctx, id, "extend", err)
	}
	return hr, nil
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hand_raises
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+handRaiseColumns,
		id, models.HandRaiseStatusCompleted, models.HandRaiseStatusActive,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		return nil, r.mutationFailure(ctx, id, "complete", err)
	}
	return hr, nil
}

func (r *Repository) Dismiss(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE hand_raises
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4, $5)
		RETURNING `+handRaiseColumns,
		id, models.HandRaiseStatusDismissed,
		models.HandRaiseStatusRaised, models.HandRaiseStatusAcknowledged, models.HandRaiseStatusActive,
	)
	hr, err := scanHandRaise(row)
	if err != nil {
		return nil, r.mutationFailure(ctx, id, "dismiss", err)
	}
	return hr, nil
}

// mutationFailure turns a zero-row guarded update into the typed error the
// caller expects: NotFound when the row is missing, Conflict when its current
// status forbids the transition.
func (r *Repository) mutationFailure(ctx context.Context, id uuid.UUID, op string, err error) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to %s hand raise: %w", op, err)
	}
	existing, getErr := r.GetHandRaise(ctx, id)
	if getErr != nil {
		return getErr
	}
	return apperrors.Conflict("hand_raise", "cannot %s hand raise %s with status %s", op, id, existing.Status)
}

func scanHandRaise(row pgx.Row) (*models.HandRaise, error) {
	var hr models.HandRaise
	err := row.Scan(
		&hr.ID, &hr.SessionID, &hr.UserID, &hr.UserName, &hr.Topic, &hr.Status,
		&hr.RaisedAt, &hr.HotSeatStartedAt, &hr.HotSeatDurationSec, &hr.TimeExtendedSec, &hr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &hr, nil
}
