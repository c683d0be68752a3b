package chat

import (
	"github.com/google/uuid"
)

// SendMessageRequest represents a request to append a message to the session log.
type SendMessageRequest struct {
	ID             uuid.UUID         `json:"id"`
	SessionID      uuid.UUID         `json:"session_id"`
	BreakoutRoomID *uuid.UUID        `json:"breakout_room_id,omitempty"`
	Message        string            `json:"message"`
	SenderID       uuid.UUID         `json:"sender_id"`
	SenderName     string            `json:"sender_name"`
	IsHostMessage  bool              `json:"is_host_message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}
