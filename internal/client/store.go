package client

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

// Store holds the client-side projection of one session. It is owned by the
// coordinator's dispatch goroutine; nothing else touches it, so it carries no
// locking. Every input path — mutation responses, realtime notifications,
// snapshot polls — funnels through the same apply methods, which reconcile by
// entity id and the entity's own UpdatedAt (last write wins, not arrival
// order). Reapplying the same version is a no-op, so at-least-once delivery
// and duplicate polls are harmless.
type Store struct {
	handRaises map[uuid.UUID]models.HandRaise
	rooms      map[uuid.UUID]models.BreakoutRoom
	messages   map[uuid.UUID]models.SessionChatMessage
}

func NewStore() *Store {
	return &Store{
		handRaises: make(map[uuid.UUID]models.HandRaise),
		rooms:      make(map[uuid.UUID]models.BreakoutRoom),
		messages:   make(map[uuid.UUID]models.SessionChatMessage),
	}
}

// ApplyChange decodes a change envelope and reconciles it into the store.
// Returns the applied entity's id, or an error if the payload is malformed.
// A DELETE kind removes the entity regardless of version.
func (s *Store) ApplyChange(change events.EntityChange) error {
	switch change.EntityType {
	case events.EntityTypeHandRaise:
		if change.ChangeKind == events.ChangeKindDelete {
			return s.deleteByPayloadID(change.Payload, s.removeHandRaise)
		}
		var hr models.HandRaise
		if err := json.Unmarshal(change.Payload, &hr); err != nil {
			return fmt.Errorf("decode hand raise payload: %w", err)
		}
		s.ApplyHandRaise(hr)
	case events.EntityTypeBreakoutRoom:
		if change.ChangeKind == events.ChangeKindDelete {
			return s.deleteByPayloadID(change.Payload, s.removeRoom)
		}
		var room models.BreakoutRoom
		if err := json.Unmarshal(change.Payload, &room); err != nil {
			return fmt.Errorf("decode breakout room payload: %w", err)
		}
		s.ApplyRoom(room)
	case events.EntityTypeChatMessage:
		if change.ChangeKind == events.ChangeKindDelete {
			return s.deleteByPayloadID(change.Payload, s.removeMessage)
		}
		var msg models.SessionChatMessage
		if err := json.Unmarshal(change.Payload, &msg); err != nil {
			return fmt.Errorf("decode chat message payload: %w", err)
		}
		s.ApplyMessage(msg)
	default:
		return fmt.Errorf("unknown entity type %q", change.EntityType)
	}
	return nil
}

// ApplySnapshot merges a full poll result through the same reconciliation
// path as individual notifications.
func (s *Store) ApplySnapshot(snap events.SessionSnapshot) {
	for _, hr := range snap.HandRaises {
		s.ApplyHandRaise(hr)
	}
	for _, room := range snap.Rooms {
		s.ApplyRoom(room)
	}
	for _, msg := range snap.Messages {
		s.ApplyMessage(msg)
	}
}

// ApplyHandRaise reconciles one hand raise. Stale versions are dropped.
func (s *Store) ApplyHandRaise(hr models.HandRaise) bool {
	if existing, ok := s.handRaises[hr.ID]; ok && !hr.UpdatedAt.After(existing.UpdatedAt) {
		return false
	}
	s.handRaises[hr.ID] = hr
	return true
}

// ApplyRoom reconciles one breakout room. Stale versions are dropped.
func (s *Store) ApplyRoom(room models.BreakoutRoom) bool {
	if existing, ok := s.rooms[room.ID]; ok && !room.UpdatedAt.After(existing.UpdatedAt) {
		return false
	}
	s.rooms[room.ID] = room
	return true
}

// ApplyMessage reconciles one chat message. Stale versions are dropped.
func (s *Store) ApplyMessage(msg models.SessionChatMessage) bool {
	if existing, ok := s.messages[msg.ID]; ok && !msg.UpdatedAt.After(existing.UpdatedAt) {
		return false
	}
	s.messages[msg.ID] = msg
	return true
}

func (s *Store) removeHandRaise(id uuid.UUID) { delete(s.handRaises, id) }
func (s *Store) removeRoom(id uuid.UUID)      { delete(s.rooms, id) }
func (s *Store) removeMessage(id uuid.UUID)   { delete(s.messages, id) }

func (s *Store) deleteByPayloadID(payload json.RawMessage, remove func(uuid.UUID)) error {
	var ref struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("decode delete payload: %w", err)
	}
	remove(ref.ID)
	return nil
}

// Queue returns the live turn queue: RAISED and ACKNOWLEDGED entries ordered
// by ascending RaisedAt. The order depends only on the stored entities, never
// on notification arrival order.
func (s *Store) Queue() []models.HandRaise {
	var queue []models.HandRaise
	for _, hr := range s.handRaises {
		if hr.Status.InQueue() {
			queue = append(queue, hr)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		if queue[i].RaisedAt.Equal(queue[j].RaisedAt) {
			return queue[i].ID.String() < queue[j].ID.String()
		}
		return queue[i].RaisedAt.Before(queue[j].RaisedAt)
	})
	return queue
}

// ActiveHandRaise returns the session's hot-seat entry, or nil.
func (s *Store) ActiveHandRaise() *models.HandRaise {
	for _, hr := range s.handRaises {
		if hr.Status == models.HandRaiseStatusActive {
			active := hr
			return &active
		}
	}
	return nil
}

// HandRaise returns one entry by id, or nil.
func (s *Store) HandRaise(id uuid.UUID) *models.HandRaise {
	if hr, ok := s.handRaises[id]; ok {
		return &hr
	}
	return nil
}

// Rooms returns every known breakout room ordered by name.
func (s *Store) Rooms() []models.BreakoutRoom {
	var rooms []models.BreakoutRoom
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Name == rooms[j].Name {
			return rooms[i].ID.String() < rooms[j].ID.String()
		}
		return rooms[i].Name < rooms[j].Name
	})
	return rooms
}

// Room returns one room by id, or nil.
func (s *Store) Room(id uuid.UUID) *models.BreakoutRoom {
	if room, ok := s.rooms[id]; ok {
		return &room
	}
	return nil
}

// Messages returns the rendered chat projection for one scope: nil roomID is
// the main room, a non-nil roomID is that breakout room. Deleted messages are
// retained in the store but excluded here. Ordered by SentAt.
func (s *Store) Messages(roomID *uuid.UUID) []models.SessionChatMessage {
	var msgs []models.SessionChatMessage
	for _, msg := range s.messages {
		if msg.IsDeleted || !msg.InScope(roomID) {
			continue
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].ID.String() < msgs[j].ID.String()
		}
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
	return msgs
}

// PinnedMessages returns the pinned, non-deleted messages for one scope.
func (s *Store) PinnedMessages(roomID *uuid.UUID) []models.SessionChatMessage {
	var pinned []models.SessionChatMessage
	for _, msg := range s.Messages(roomID) {
		if msg.IsPinned {
			pinned = append(pinned, msg)
		}
	}
	return pinned
}
