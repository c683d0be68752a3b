package models

import (
	"time"

	"github.com/google/uuid"
)

// HandRaiseStatus defines the lifecycle status of a hand raise.
type HandRaiseStatus string

const (
	HandRaiseStatusRaised       HandRaiseStatus = "RAISED"
	HandRaiseStatusAcknowledged HandRaiseStatus = "ACKNOWLEDGED"
	HandRaiseStatusActive       HandRaiseStatus = "ACTIVE"
	HandRaiseStatusCompleted    HandRaiseStatus = "COMPLETED"
	HandRaiseStatusDismissed    HandRaiseStatus = "DISMISSED"
)

// DefaultHotSeatDurationSec is the hot-seat length applied when a raise does not specify one.
const DefaultHotSeatDurationSec = 300

// IsValid reports whether the status is a known hand-raise status.
func (s HandRaiseStatus) IsValid() bool {
	switch s {
	case HandRaiseStatusRaised, HandRaiseStatusAcknowledged, HandRaiseStatusActive,
		HandRaiseStatusCompleted, HandRaiseStatusDismissed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the hand-raise lifecycle.
// Terminal records are retained for audit but excluded from the live queue.
func (s HandRaiseStatus) IsTerminal() bool {
	return s == HandRaiseStatusCompleted || s == HandRaiseStatusDismissed
}

// InQueue reports whether a hand raise with this status occupies a queue slot.
func (s HandRaiseStatus) InQueue() bool {
	return s == HandRaiseStatusRaised || s == HandRaiseStatusAcknowledged
}

// HandRaise represents one participant's request for a hot-seat turn.
// At most one non-terminal hand raise exists per (session, user), and at most
// one hand raise is ACTIVE per session.
type HandRaise struct {
	ID                 uuid.UUID       `json:"id"`
	SessionID          uuid.UUID       `json:"session_id"`
	UserID             uuid.UUID       `json:"user_id"`
	UserName           string          `json:"user_name"`
	Topic              *string         `json:"topic,omitempty"`
	Status             HandRaiseStatus `json:"status"`
	RaisedAt           time.Time       `json:"raised_at"`
	HotSeatStartedAt   *time.Time      `json:"hot_seat_started_at,omitempty"`
	HotSeatDurationSec int             `json:"hot_seat_duration_sec"`
	TimeExtendedSec    int             `json:"time_extended_sec"`
	UpdatedAt          time.Time       `json:"updated_at"`
}
