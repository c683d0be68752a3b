package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

var storeEpoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func queuedRaise(sessionID uuid.UUID, raisedAt, updatedAt time.Time) models.HandRaise {
	return models.HandRaise{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		UserID:             uuid.New(),
		UserName:           "someone",
		Status:             models.HandRaiseStatusRaised,
		RaisedAt:           raisedAt,
		HotSeatDurationSec: models.DefaultHotSeatDurationSec,
		UpdatedAt:          updatedAt,
	}
}

func TestApplyHandRaiseLastWriteWins(t *testing.T) {
	store := NewStore()
	sessionID := uuid.New()

	hr := queuedRaise(sessionID, storeEpoch, storeEpoch)
	if !store.ApplyHandRaise(hr) {
		t.Fatal("initial apply rejected")
	}

	// A newer version replaces the old one.
	newer := hr
	newer.Status = models.HandRaiseStatusAcknowledged
	newer.UpdatedAt = storeEpoch.Add(time.Second)
	if !store.ApplyHandRaise(newer) {
		t.Fatal("newer version rejected")
	}

	// A stale version arriving late is dropped, regardless of arrival order.
	stale := hr
	stale.Status = models.HandRaiseStatusRaised
	stale.UpdatedAt = storeEpoch
	if store.ApplyHandRaise(stale) {
		t.Fatal("stale version applied over newer state")
	}
	if got := store.HandRaise(hr.ID).Status; got != models.HandRaiseStatusAcknowledged {
		t.Fatalf("status = %s, want ACKNOWLEDGED", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	store := NewStore()
	hr := queuedRaise(uuid.New(), storeEpoch, storeEpoch)

	store.ApplyHandRaise(hr)
	if store.ApplyHandRaise(hr) {
		t.Fatal("reapplying the identical version reported a change")
	}
	if len(store.Queue()) != 1 {
		t.Fatalf("queue length = %d after duplicate apply, want 1", len(store.Queue()))
	}
}

func TestQueueOrderIndependentOfArrival(t *testing.T) {
	sessionID := uuid.New()
	first := queuedRaise(sessionID, storeEpoch, storeEpoch)
	second := queuedRaise(sessionID, storeEpoch.Add(time.Second), storeEpoch.Add(time.Second))
	third := queuedRaise(sessionID, storeEpoch.Add(2*time.Second), storeEpoch.Add(2*time.Second))

	arrivals := [][]models.HandRaise{
		{first, second, third},
		{third, first, second},
		{second, third, first},
	}

	for _, arrival := range arrivals {
		store := NewStore()
		for _, hr := range arrival {
			store.ApplyHandRaise(hr)
		}
		queue := store.Queue()
		if len(queue) != 3 {
			t.Fatalf("queue length = %d, want 3", len(queue))
		}
		want := []uuid.UUID{first.ID, second.ID, third.ID}
		for i, hr := range queue {
			if hr.ID != want[i] {
				t.Fatalf("queue[%d] = %s, want %s", i, hr.ID, want[i])
			}
		}
	}
}

func TestQueueExcludesActiveAndTerminal(t *testing.T) {
	store := NewStore()
	sessionID := uuid.New()

	queued := queuedRaise(sessionID, storeEpoch, storeEpoch)
	active := queuedRaise(sessionID, storeEpoch.Add(time.Second), storeEpoch.Add(time.Second))
	active.Status = models.HandRaiseStatusActive
	done := queuedRaise(sessionID, storeEpoch.Add(2*time.Second), storeEpoch.Add(2*time.Second))
	done.Status = models.HandRaiseStatusCompleted

	store.ApplyHandRaise(queued)
	store.ApplyHandRaise(active)
	store.ApplyHandRaise(done)

	queue := store.Queue()
	if len(queue) != 1 || queue[0].ID != queued.ID {
		t.Fatalf("queue = %v, want only the RAISED entry", queue)
	}
	got := store.ActiveHandRaise()
	if got == nil || got.ID != active.ID {
		t.Fatalf("ActiveHandRaise = %v, want %s", got, active.ID)
	}
}

func TestMessagesScopedAndDeletedExcluded(t *testing.T) {
	store := NewStore()
	sessionID := uuid.New()
	roomID := uuid.New()

	mainMsg := models.SessionChatMessage{
		ID: uuid.New(), SessionID: sessionID, Message: "main",
		SentAt: storeEpoch, UpdatedAt: storeEpoch,
	}
	roomMsg := models.SessionChatMessage{
		ID: uuid.New(), SessionID: sessionID, BreakoutRoomID: &roomID, Message: "room",
		SentAt: storeEpoch.Add(time.Second), UpdatedAt: storeEpoch.Add(time.Second),
	}
	deleted := models.SessionChatMessage{
		ID: uuid.New(), SessionID: sessionID, Message: "gone", IsDeleted: true,
		SentAt: storeEpoch.Add(2 * time.Second), UpdatedAt: storeEpoch.Add(2 * time.Second),
	}
	store.ApplyMessage(mainMsg)
	store.ApplyMessage(roomMsg)
	store.ApplyMessage(deleted)

	main := store.Messages(nil)
	if len(main) != 1 || main[0].ID != mainMsg.ID {
		t.Fatalf("main scope = %v, want only the main-room message", main)
	}

	room := store.Messages(&roomID)
	if len(room) != 1 || room[0].ID != roomMsg.ID {
		t.Fatalf("room scope = %v, want only the room message", room)
	}

	other := uuid.New()
	if got := store.Messages(&other); len(got) != 0 {
		t.Fatalf("unknown room scope = %v, want empty", got)
	}
}

func TestApplyChangeDeleteRemovesEntity(t *testing.T) {
	store := NewStore()
	hr := queuedRaise(uuid.New(), storeEpoch, storeEpoch)
	store.ApplyHandRaise(hr)

	payload, err := json.Marshal(hr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	err = store.ApplyChange(events.EntityChange{
		EventID:    uuid.New(),
		SessionID:  hr.SessionID,
		EntityType: events.EntityTypeHandRaise,
		ChangeKind: events.ChangeKindDelete,
		OccurredAt: storeEpoch.Add(time.Second),
		Payload:    payload,
	})
	if err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if store.HandRaise(hr.ID) != nil {
		t.Fatal("entity still present after delete change")
	}
}

func TestApplyChangeMalformedPayload(t *testing.T) {
	store := NewStore()
	err := store.ApplyChange(events.EntityChange{
		EventID:    uuid.New(),
		EntityType: events.EntityTypeHandRaise,
		ChangeKind: events.ChangeKindInsert,
		Payload:    json.RawMessage(`{"id": 42}`),
	})
	if err == nil {
		t.Fatal("malformed payload applied without error")
	}

	err = store.ApplyChange(events.EntityChange{
		EventID:    uuid.New(),
		EntityType: "THERMOSTAT",
		ChangeKind: events.ChangeKindInsert,
		Payload:    json.RawMessage(`{}`),
	})
	if err == nil {
		t.Fatal("unknown entity type applied without error")
	}
}

func TestSnapshotMergesThroughSamePath(t *testing.T) {
	store := NewStore()
	sessionID := uuid.New()

	// Push delivered a newer version than the poll carries.
	hr := queuedRaise(sessionID, storeEpoch, storeEpoch.Add(5*time.Second))
	hr.Status = models.HandRaiseStatusAcknowledged
	store.ApplyHandRaise(hr)

	stale := hr
	stale.Status = models.HandRaiseStatusRaised
	stale.UpdatedAt = storeEpoch

	room := models.BreakoutRoom{
		ID: uuid.New(), SessionID: sessionID, Name: "Room 1",
		Status: models.BreakoutRoomStatusPending, AssignmentMethod: models.AssignmentMethodManual,
		DurationSec: 300, UpdatedAt: storeEpoch,
	}

	store.ApplySnapshot(events.SessionSnapshot{
		SessionID:  sessionID,
		ServerTime: storeEpoch.Add(10 * time.Second),
		HandRaises: []models.HandRaise{stale},
		Rooms:      []models.BreakoutRoom{room},
	})

	if got := store.HandRaise(hr.ID).Status; got != models.HandRaiseStatusAcknowledged {
		t.Fatalf("poll overwrote newer push state: status = %s", got)
	}
	if store.Room(room.ID) == nil {
		t.Fatal("snapshot room not applied")
	}
}

func TestEntityJSONRoundTrip(t *testing.T) {
	topic := "pricing question"
	started := storeEpoch.Add(time.Minute)
	hr := models.HandRaise{
		ID:                 uuid.New(),
		SessionID:          uuid.New(),
		UserID:             uuid.New(),
		UserName:           "alice",
		Topic:              &topic,
		Status:             models.HandRaiseStatusActive,
		RaisedAt:           storeEpoch,
		HotSeatStartedAt:   &started,
		HotSeatDurationSec: 300,
		TimeExtendedSec:    60,
		UpdatedAt:          started,
	}

	raw, err := json.Marshal(hr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back models.HandRaise
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Topic == nil || *back.Topic != topic {
		t.Fatalf("topic = %v, want %q", back.Topic, topic)
	}
	if back.HotSeatStartedAt == nil || !back.HotSeatStartedAt.Equal(started) {
		t.Fatalf("hotSeatStartedAt = %v, want %v", back.HotSeatStartedAt, started)
	}
	if back.TimeExtendedSec != 60 {
		t.Fatalf("timeExtendedSec = %d, want 60", back.TimeExtendedSec)
	}

	// Nullable fields survive as nulls too.
	bare := models.HandRaise{ID: uuid.New(), Status: models.HandRaiseStatusRaised, RaisedAt: storeEpoch, UpdatedAt: storeEpoch}
	raw, err = json.Marshal(bare)
	if err != nil {
		t.Fatalf("marshal bare: %v", err)
	}
	var bareBack models.HandRaise
	if err := json.Unmarshal(raw, &bareBack); err != nil {
		t.Fatalf("unmarshal bare: %v", err)
	}
	if bareBack.Topic != nil || bareBack.HotSeatStartedAt != nil {
		t.Fatalf("nil fields round-tripped non-nil: %+v", bareBack)
	}
}
