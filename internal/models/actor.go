package models

import "github.com/google/uuid"

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	IsHost   bool      `json:"is_host"`
}
