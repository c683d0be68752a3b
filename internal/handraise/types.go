package handraise

import (
	"github.com/google/uuid"
)

// CreateHandRaiseRequest represents a request to join the hand-raise queue.
type CreateHandRaiseRequest struct {
	ID                 uuid.UUID `json:"id"`
	SessionID          uuid.UUID `json:"session_id"`
	UserID             uuid.UUID `json:"user_id"`
	UserName           string    `json:"user_name"`
	Topic              *string   `json:"topic,omitempty"`
	HotSeatDurationSec int       `json:"hot_seat_duration_sec"`
}

// ExtendRequest adds time to the active hot seat.
type ExtendRequest struct {
	Seconds int `json:"seconds"`
}
