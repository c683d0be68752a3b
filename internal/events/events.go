// Package events defines the wire contract shared by the outbox publisher, the
// websocket gateway, and the client sync layer: the per-session entity-change
// envelope and the full-resync snapshot.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/models"
)

// EntityType identifies which entity a change notification carries.
type EntityType string

const (
	EntityTypeHandRaise    EntityType = "HAND_RAISE"
	EntityTypeBreakoutRoom EntityType = "BREAKOUT_ROOM"
	EntityTypeChatMessage  EntityType = "CHAT_MESSAGE"
)

// IsValid reports whether the entity type is known.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityTypeHandRaise, EntityTypeBreakoutRoom, EntityTypeChatMessage:
		return true
	}
	return false
}

// ChangeKind identifies how the entity changed.
type ChangeKind string

const (
	ChangeKindInsert ChangeKind = "INSERT"
	ChangeKindUpdate ChangeKind = "UPDATE"
	ChangeKindDelete ChangeKind = "DELETE"
)

// EntityChange is the envelope broadcast on the realtime channel. Delivery is
// at-least-once with no cross-entity ordering guarantee; consumers reconcile
// by entity id using the entity's own updated_at timestamp, not arrival order.
type EntityChange struct {
	EventID    uuid.UUID       `json:"event_id"`
	SessionID  uuid.UUID       `json:"session_id"`
	EntityType EntityType      `json:"entity_type"`
	ChangeKind ChangeKind      `json:"change_kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// SessionSnapshot is the full-resync poll payload. It merges into client state
// through the same idempotent apply path as push notifications.
type SessionSnapshot struct {
	SessionID  uuid.UUID                   `json:"session_id"`
	ServerTime time.Time                   `json:"server_time"`
	HandRaises []models.HandRaise          `json:"hand_raises"`
	Rooms      []models.BreakoutRoom       `json:"rooms"`
	Messages   []models.SessionChatMessage `json:"messages"`
}

// JetStream naming for the session event bus.
const (
	StreamName      = "SESSION_EVENTS"
	SubjectPrefix   = "session.events."
	SubjectWildcard = "session.events.>"
)

// Subject returns the per-session subject events for sessionID are published on.
func Subject(sessionID uuid.UUID) string {
	return SubjectPrefix + sessionID.String()
}
