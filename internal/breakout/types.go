package breakout

import (
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/models"
)

// RoomSpec describes one room to create.
type RoomSpec struct {
	Name            string  `json:"name"`
	Topic           *string `json:"topic,omitempty"`
	MaxParticipants int     `json:"max_participants"`
}

// CreateRoomsRequest represents a host request to create a set of rooms in PENDING.
type CreateRoomsRequest struct {
	SessionID        uuid.UUID               `json:"session_id"`
	Specs            []RoomSpec              `json:"specs"`
	AssignmentMethod models.AssignmentMethod `json:"assignment_method"`
	DurationSec      int                     `json:"duration_sec"`
}

// JoinGrant is the response to a successful join: the room and the opaque
// transport credential.
type JoinGrant struct {
	Room       models.BreakoutRoom `json:"room"`
	Credential JoinCredential      `json:"credential"`
}

// RoomDeadline is the soonest ends_at across a session's active rooms,
// consumed by the deadline scheduler.
type RoomDeadline struct {
	SessionID uuid.UUID  `json:"session_id"`
	Deadline  *time.Time `json:"deadline"`
}
