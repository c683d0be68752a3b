package models

import (
	"time"

	"github.com/google/uuid"
)

// BreakoutRoomStatus defines the lifecycle status of a breakout room.
type BreakoutRoomStatus string

const (
	BreakoutRoomStatusPending   BreakoutRoomStatus = "PENDING"
	BreakoutRoomStatusActive    BreakoutRoomStatus = "ACTIVE"
	BreakoutRoomStatusReturning BreakoutRoomStatus = "RETURNING"
	BreakoutRoomStatusClosed    BreakoutRoomStatus = "CLOSED"
)

// IsValid reports whether the status is a known breakout-room status.
func (s BreakoutRoomStatus) IsValid() bool {
	switch s {
	case BreakoutRoomStatusPending, BreakoutRoomStatusActive,
		BreakoutRoomStatusReturning, BreakoutRoomStatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the room status may advance to next.
// Allowed edges: PENDING->ACTIVE, ACTIVE->RETURNING, ACTIVE->CLOSED,
// RETURNING->CLOSED. No backward transitions, nothing after CLOSED.
func (s BreakoutRoomStatus) CanTransitionTo(next BreakoutRoomStatus) bool {
	switch s {
	case BreakoutRoomStatusPending:
		return next == BreakoutRoomStatusActive || next == BreakoutRoomStatusClosed
	case BreakoutRoomStatusActive:
		return next == BreakoutRoomStatusReturning || next == BreakoutRoomStatusClosed
	case BreakoutRoomStatusReturning:
		return next == BreakoutRoomStatusClosed
	default:
		return false
	}
}

// AssignmentMethod defines how participants are distributed into breakout rooms.
type AssignmentMethod string

const (
	AssignmentMethodRandom     AssignmentMethod = "RANDOM"
	AssignmentMethodManual     AssignmentMethod = "MANUAL"
	AssignmentMethodSelfSelect AssignmentMethod = "SELF_SELECT"
)

// IsValid reports whether the assignment method is known.
func (m AssignmentMethod) IsValid() bool {
	switch m {
	case AssignmentMethodRandom, AssignmentMethodManual, AssignmentMethodSelfSelect:
		return true
	}
	return false
}

// AllowsSelfSelection reports whether participants may pick a room other than
// the one they were assigned.
func (m AssignmentMethod) AllowsSelfSelection() bool {
	return m == AssignmentMethodSelfSelect
}

// BreakoutRoom represents a temporary sub-session split off from the main session.
// While a session's rooms are ACTIVE they partition the assigned non-host
// participants: a participant belongs to at most one active room at a time.
type BreakoutRoom struct {
	ID               uuid.UUID          `json:"id"`
	SessionID        uuid.UUID          `json:"session_id"`
	Name             string             `json:"name"`
	Topic            *string            `json:"topic,omitempty"`
	Status           BreakoutRoomStatus `json:"status"`
	AssignmentMethod AssignmentMethod   `json:"assignment_method"`
	DurationSec      int                `json:"duration_sec"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	EndsAt           *time.Time         `json:"ends_at,omitempty"`
	MaxParticipants  int                `json:"max_participants"`
	ParticipantCount int                `json:"participant_count"`
	// ExternalRoomRef is the opaque handle issued by the video transport
	// provider. The coordinator never inspects it.
	ExternalRoomRef *string   `json:"external_room_ref,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
