package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/httpapi"
	"github.com/coachdeck/livesession/internal/models"
)

// HandRaiseLister supplies the hand-raise slice of a snapshot.
type HandRaiseLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.HandRaise, error)
}

// RoomLister supplies the breakout-room slice of a snapshot.
type RoomLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
}

// MessageLister supplies the chat slice of a snapshot.
type MessageLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.SessionChatMessage, error)
}

// SnapshotHandler serves the full-state poll endpoint. Clients hit it on
// connect and every poll interval; the server_time field lets them correct
// clock skew when deriving countdowns.
type SnapshotHandler struct {
	handRaises HandRaiseLister
	rooms      RoomLister
	messages   MessageLister
}

func NewSnapshotHandler(handRaises HandRaiseLister, rooms RoomLister, messages MessageLister) *SnapshotHandler {
	return &SnapshotHandler{handRaises: handRaises, rooms: rooms, messages: messages}
}

// RegisterRoutes registers the snapshot endpoint with an HTTP mux.
func (h *SnapshotHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{sessionID}/snapshot", h.HandleSnapshot)
}

func (h *SnapshotHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID, err := httpapi.PathUUID(r, "sessionID")
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	ctx := r.Context()

	raises, err := h.handRaises.ListBySession(ctx, sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	rooms, err := h.rooms.ListBySession(ctx, sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}
	messages, err := h.messages.ListBySession(ctx, sessionID)
	if err != nil {
		httpapi.WriteError(w, err)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, events.SessionSnapshot{
		SessionID:  sessionID,
		ServerTime: time.Now().UTC(),
		HandRaises: raises,
		Rooms:      rooms,
		Messages:   messages,
	})
}
