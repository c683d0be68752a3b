package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionParticipant is a session roster entry. The roster is the population
// random breakout assignment draws from, so every client registers itself on
// joining the session. Registration is an upsert: repeat joins refresh the
// display name and host flag.
type SessionParticipant struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	UserName  string    `json:"user_name"`
	IsHost    bool      `json:"is_host"`
	JoinedAt  time.Time `json:"joined_at"`
}
