package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat message length bounds, validated before any request is issued.
const (
	ChatMessageMinLen = 1
	ChatMessageMaxLen = 500
)

// SessionChatMessage is one entry in the append-only session chat log.
// BreakoutRoomID nil means the message belongs to the main room; otherwise it
// belongs to exactly that breakout room. Content is never mutated after send;
// only the pin and delete flags change.
type SessionChatMessage struct {
	ID             uuid.UUID         `json:"id"`
	SessionID      uuid.UUID         `json:"session_id"`
	BreakoutRoomID *uuid.UUID        `json:"breakout_room_id,omitempty"`
	Message        string            `json:"message"`
	SenderID       uuid.UUID         `json:"sender_id"`
	SenderName     string            `json:"sender_name"`
	SentAt         time.Time         `json:"sent_at"`
	IsHostMessage  bool              `json:"is_host_message"`
	IsPinned       bool              `json:"is_pinned"`
	IsDeleted      bool              `json:"is_deleted"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// InScope reports whether the message belongs to the given scope: nil roomID
// is the main room, a non-nil roomID is that specific breakout room.
func (m *SessionChatMessage) InScope(roomID *uuid.UUID) bool {
	if roomID == nil {
		return m.BreakoutRoomID == nil
	}
	return m.BreakoutRoomID != nil && *m.BreakoutRoomID == *roomID
}
