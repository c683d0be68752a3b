package breakout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/models"
)

// Repository persists breakout rooms and their memberships. Forward-only
// status transitions are enforced by the status predicates on each UPDATE;
// the random participant distribution lives entirely in SQL, so the app layer
// only sees its observable contract.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roomColumns = `br.id, br.session_id, br.name, br.topic, br.status, br.assignment_method,
	br.duration_sec, br.started_at, br.ends_at, br.max_participants,
	(SELECT count(*) FROM breakout_room_members m WHERE m.room_id = br.id) AS participant_count,
	br.external_room_ref, br.updated_at`

// CreateRooms inserts the requested rooms in PENDING within one transaction.
func (r *Repository) CreateRooms(ctx context.Context, req CreateRoomsRequest, externalRefs []string) ([]models.BreakoutRoom, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rooms := make([]models.BreakoutRoom, 0, len(req.Specs))
	for i, spec := range req.Specs {
		row := tx.QueryRow(ctx, `
			INSERT INTO breakout_rooms AS br (id, session_id, name, topic, status, assignment_method,
				duration_sec, max_participants, external_room_ref, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
			RETURNING `+roomColumns,
			uuid.New(), req.SessionID, spec.Name, spec.Topic, models.BreakoutRoomStatusPending,
			req.AssignmentMethod, req.DurationSec, spec.MaxParticipants, externalRefs[i],
		)
		room, err := scanRoom(row)
		if err != nil {
			return nil, fmt.Errorf("failed to create room %q: %w", spec.Name, err)
		}
		rooms = append(rooms, *room)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit room creation: %w", err)
	}
	return rooms, nil
}

func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.BreakoutRoom, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM breakout_rooms br WHERE br.id = $1`, id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("breakout_room", "room %s not found", id)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+roomColumns+`
		FROM breakout_rooms br
		WHERE br.session_id = $1
		ORDER BY br.name`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()
	return collectRooms(rows)
}

// StartRooms transitions every PENDING room in the session to ACTIVE and
// stamps the shared deadline.
func (r *Repository) StartRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE breakout_rooms br
		SET status = $2, started_at = now(),
			ends_at = now() + make_interval(secs => br.duration_sec),
			updated_at = now()
		WHERE br.session_id = $1 AND br.status = $3
		RETURNING `+roomColumns,
		sessionID, models.BreakoutRoomStatusActive, models.BreakoutRoomStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start rooms: %w", err)
	}
	defer rows.Close()
	return collectRooms(rows)
}

// AssignParticipants distributes every unassigned non-host participant across
// the session's active rooms. The distribution itself is the database's
// business; the contract is that each participant ends up in exactly one room.
func (r *Repository) AssignParticipants(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		WITH active_rooms AS (
			SELECT id,
				row_number() OVER (ORDER BY id) - 1 AS room_idx,
				count(*) OVER () AS room_count
			FROM breakout_rooms
			WHERE session_id = $1 AND status = $2
		),
		unassigned AS (
			SELECT p.user_id,
				row_number() OVER (ORDER BY random()) - 1 AS part_idx
			FROM session_participants p
			WHERE p.session_id = $1 AND NOT p.is_host
		)
		INSERT INTO breakout_room_members (room_id, session_id, user_id, joined_at)
		SELECT ar.id, $1, u.user_id, now()
		FROM unassigned u
		JOIN active_rooms ar ON ar.room_idx = u.part_idx % ar.room_count
		ON CONFLICT (session_id, user_id) DO NOTHING`,
		sessionID, models.BreakoutRoomStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to assign participants: %w", err)
	}
	return nil
}

// GetAssignment returns the room the user currently belongs to, or nil.
func (r *Repository) GetAssignment(ctx context.Context, sessionID, userID uuid.UUID) (*uuid.UUID, error) {
	var roomID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT room_id FROM breakout_room_members
		WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID,
	).Scan(&roomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &roomID, nil
}

// AddMember binds the user to the room. When move is true an existing
// membership is reassigned; otherwise a membership in a different room stays
// put and the insert is a no-op for that user.
func (r *Repository) AddMember(ctx context.Context, roomID, sessionID, userID uuid.UUID, move bool) error {
	query := `
		INSERT INTO breakout_room_members (room_id, session_id, user_id, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, user_id) DO NOTHING`
	if move {
		query = `
		INSERT INTO breakout_room_members (room_id, session_id, user_id, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id, user_id) DO UPDATE SET room_id = $1, joined_at = now()`
	}
	if _, err := r.pool.Exec(ctx, query, roomID, sessionID, userID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// ReturnRoomsToMain transitions the session's ACTIVE rooms to RETURNING and
// releases every membership.
func (r *Repository) ReturnRoomsToMain(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE breakout_rooms br
		SET status = $2, updated_at = now()
		WHERE br.session_id = $1 AND br.status = $3
		RETURNING `+roomColumns,
		sessionID, models.BreakoutRoomStatusReturning, models.BreakoutRoomStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark rooms returning: %w", err)
	}
	rooms, err := collectRooms(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM breakout_room_members WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to release memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit return to main: %w", err)
	}

	// Membership release zeroes the derived count.
	for i := range rooms {
		rooms[i].ParticipantCount = 0
	}
	return rooms, nil
}

// CloseRooms force-transitions every non-CLOSED room in the session to CLOSED.
func (r *Repository) CloseRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE breakout_rooms br
		SET status = $2, updated_at = now()
		WHERE br.session_id = $1 AND br.status <> $2
		RETURNING `+roomColumns,
		sessionID, models.BreakoutRoomStatusClosed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to close rooms: %w", err)
	}
	rooms, err := collectRooms(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM breakout_room_members WHERE session_id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("failed to release memberships: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit close: %w", err)
	}

	for i := range rooms {
		rooms[i].ParticipantCount = 0
	}
	return rooms, nil
}

// FetchNextDeadline returns the soonest ends_at across all active rooms.
func (r *Repository) FetchNextDeadline(ctx context.Context) (*RoomDeadline, error) {
	var d RoomDeadline
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, min(ends_at)
		FROM breakout_rooms
		WHERE status = $1 AND ends_at IS NOT NULL
		GROUP BY session_id
		ORDER BY min(ends_at)
		LIMIT 1`,
		models.BreakoutRoomStatusActive,
	).Scan(&d.SessionID, &d.Deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch next deadline: %w", err)
	}
	return &d, nil
}

// FetchSessionsDueForReturn returns sessions with active rooms past their deadline.
func (r *Repository) FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT session_id
		FROM breakout_rooms
		WHERE status = $1 AND ends_at IS NOT NULL AND ends_at <= now()
		LIMIT $2`,
		models.BreakoutRoomStatusActive, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due sessions: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func collectRooms(rows pgx.Rows) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		out = append(out, *room)
	}
	return out, rows.Err()
}

func scanRoom(row pgx.Row) (*models.BreakoutRoom, error) {
	var room models.BreakoutRoom
	err := row.Scan(
		&room.ID, &room.SessionID, &room.Name, &room.Topic, &room.Status, &room.AssignmentMethod,
		&room.DurationSec, &room.StartedAt, &room.EndsAt, &room.MaxParticipants,
		&room.ParticipantCount, &room.ExternalRoomRef, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}
