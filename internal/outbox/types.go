package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/events"
)

// OutboxEvent represents one entity-change row awaiting publication to the
// realtime channel.
type OutboxEvent struct {
	ID         uuid.UUID          `json:"id"`
	SessionID  uuid.UUID          `json:"session_id"`
	EntityType events.EntityType  `json:"entity_type"`
	ChangeKind events.ChangeKind  `json:"change_kind"`
	Payload    json.RawMessage    `json:"payload"`
	CreatedAt  time.Time          `json:"created_at"`
	SentAt     *time.Time         `json:"sent_at,omitempty"`
}

// Envelope converts the row into the wire envelope broadcast to clients.
func (e OutboxEvent) Envelope() events.EntityChange {
	return events.EntityChange{
		EventID:    e.ID,
		SessionID:  e.SessionID,
		EntityType: e.EntityType,
		ChangeKind: e.ChangeKind,
		OccurredAt: e.CreatedAt,
		Payload:    e.Payload,
	}
}
