package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/breakout"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/httpapi"
	"github.com/coachdeck/livesession/internal/models"
)

// Identity is the caller identity attached to every request.
type Identity struct {
	UserID   uuid.UUID
	UserName string
	IsHost   bool
}

// API issues coordination requests against the authoritative backend. Every
// call resolves with the updated entity or a typed error; the caller never
// assumes success before the response arrives.
type API struct {
	baseURL    string
	httpClient *http.Client
	identity   Identity
}

func NewAPI(baseURL string, identity Identity) *API {
	return &API{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		identity:   identity,
	}
}

// Hand-raise operations.

func (a *API) Raise(ctx context.Context, sessionID uuid.UUID, topic *string) (*models.HandRaise, error) {
	var hr models.HandRaise
	body := map[string]any{"topic": topic}
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/handraises", sessionID), body, &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

func (a *API) Lower(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	var hr models.HandRaise
	if err := a.do(ctx, http.MethodDelete, fmt.Sprintf("/api/handraises/%s", handRaiseID), nil, &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

func (a *API) Acknowledge(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return a.handRaiseAction(ctx, handRaiseID, "acknowledge", nil)
}

func (a *API) Activate(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return a.handRaiseAction(ctx, handRaiseID, "activate", nil)
}

func (a *API) Extend(ctx context.Context, handRaiseID uuid.UUID, seconds int) (*models.HandRaise, error) {
	return a.handRaiseAction(ctx, handRaiseID, "extend", map[string]any{"seconds": seconds})
}

func (a *API) Complete(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return a.handRaiseAction(ctx, handRaiseID, "complete", nil)
}

func (a *API) Dismiss(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return a.handRaiseAction(ctx, handRaiseID, "dismiss", nil)
}

func (a *API) handRaiseAction(ctx context.Context, id uuid.UUID, action string, body any) (*models.HandRaise, error) {
	var hr models.HandRaise
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/handraises/%s/%s", id, action), body, &hr); err != nil {
		return nil, err
	}
	return &hr, nil
}

// Breakout operations.

func (a *API) CreateRooms(ctx context.Context, sessionID uuid.UUID, specs []breakout.RoomSpec, method models.AssignmentMethod, durationSec int) ([]models.BreakoutRoom, error) {
	body := map[string]any{
		"specs":             specs,
		"assignment_method": method,
		"duration_sec":      durationSec,
	}
	var rooms []models.BreakoutRoom
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/breakouts", sessionID), body, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (a *API) StartRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return a.breakoutSessionAction(ctx, sessionID, "start")
}

func (a *API) ReturnToMain(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return a.breakoutSessionAction(ctx, sessionID, "return")
}

func (a *API) CloseRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return a.breakoutSessionAction(ctx, sessionID, "close")
}

func (a *API) breakoutSessionAction(ctx context.Context, sessionID uuid.UUID, action string) ([]models.BreakoutRoom, error) {
	var rooms []models.BreakoutRoom
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/breakouts/%s", sessionID, action), nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (a *API) JoinRoom(ctx context.Context, roomID uuid.UUID) (*breakout.JoinGrant, error) {
	var grant breakout.JoinGrant
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/breakouts/%s/join", roomID), nil, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

func (a *API) HostSwitch(ctx context.Context, roomID uuid.UUID) (*breakout.JoinGrant, error) {
	var grant breakout.JoinGrant
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/breakouts/%s/switch", roomID), nil, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Chat operations.

func (a *API) SendMessage(ctx context.Context, sessionID uuid.UUID, roomID *uuid.UUID, message string, metadata map[string]string) (*models.SessionChatMessage, error) {
	body := map[string]any{
		"breakout_room_id": roomID,
		"message":          message,
		"metadata":         metadata,
	}
	var msg models.SessionChatMessage
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/messages", sessionID), body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) PinMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	var msg models.SessionChatMessage
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/messages/%s/pin", messageID), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) UnpinMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	var msg models.SessionChatMessage
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/messages/%s/unpin", messageID), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (a *API) DeleteMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	var msg models.SessionChatMessage
	if err := a.do(ctx, http.MethodDelete, fmt.Sprintf("/api/messages/%s", messageID), nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// JoinSession registers the caller on the session roster. Idempotent, so it
// is safe to call on every (re)connect.
func (a *API) JoinSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionParticipant, error) {
	var p models.SessionParticipant
	if err := a.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/participants", sessionID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Snapshot fetches the full-resync poll payload.
func (a *API) Snapshot(ctx context.Context, sessionID uuid.UUID) (*events.SessionSnapshot, error) {
	var snap events.SessionSnapshot
	if err := a.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%s/snapshot", sessionID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal("request", fmt.Errorf("marshal request body: %w", err))
		}
		reqBody = bytes.NewBuffer(raw)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return apperrors.Internal("request", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderUserID, a.identity.UserID.String())
	req.Header.Set(httpapi.HeaderUserName, a.identity.UserName)
	if a.identity.IsHost {
		req.Header.Set(httpapi.HeaderRole, httpapi.RoleHost)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient("request", fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody httpapi.ErrorBody
		msg := resp.Status
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return apperrors.FromHTTPStatus(resp.StatusCode, "request", msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Internal("request", fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
