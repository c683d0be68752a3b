package breakout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

// BreakoutRepository defines what the app layer needs from the repository.
type BreakoutRepository interface {
	CreateRooms(ctx context.Context, req CreateRoomsRequest, externalRefs []string) ([]models.BreakoutRoom, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.BreakoutRoom, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
	StartRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
	AssignParticipants(ctx context.Context, sessionID uuid.UUID) error
	GetAssignment(ctx context.Context, sessionID, userID uuid.UUID) (*uuid.UUID, error)
	AddMember(ctx context.Context, roomID, sessionID, userID uuid.UUID, move bool) error
	ReturnRoomsToMain(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
	CloseRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
	FetchNextDeadline(ctx context.Context) (*RoomDeadline, error)
	FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error)
}

// OutboxApp defines what the app layer needs from the outbox.
type OutboxApp interface {
	RecordBreakoutRoomChange(ctx context.Context, kind events.ChangeKind, room *models.BreakoutRoom) error
}

// App orchestrates the breakout-room lifecycle.
type App struct {
	repo   BreakoutRepository
	outbox OutboxApp
	video  VideoProvider
}

func NewApp(repo BreakoutRepository, outbox OutboxApp, video VideoProvider) *App {
	return &App{repo: repo, outbox: outbox, video: video}
}

// CreateRooms provisions transport rooms and persists them in PENDING.
func (a *App) CreateRooms(ctx context.Context, actor models.Actor, req CreateRoomsRequest) ([]models.BreakoutRoom, error) {
	if err := requireHost(actor, "create rooms"); err != nil {
		return nil, err
	}
	if err := a.validateCreateRoomsRequest(req); err != nil {
		return nil, err
	}

	externalRefs := make([]string, len(req.Specs))
	for i, spec := range req.Specs {
		ref, err := a.video.CreateRoom(ctx, req.SessionID, spec.Name)
		if err != nil {
			return nil, apperrors.Transient("breakout_room", fmt.Errorf("video provider create room: %w", err))
		}
		externalRefs[i] = ref
	}

	rooms, err := a.repo.CreateRooms(ctx, req, externalRefs)
	if err != nil {
		return nil, err
	}

	for i := range rooms {
		a.recordChange(ctx, events.ChangeKindInsert, &rooms[i])
	}
	return rooms, nil
}

// StartRooms activates every pending room and, for random assignment,
// delegates the participant distribution to the persistence layer.
func (a *App) StartRooms(ctx context.Context, actor models.Actor, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	if err := requireHost(actor, "start rooms"); err != nil {
		return nil, err
	}

	rooms, err := a.repo.StartRooms(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, apperrors.NotFound("breakout_room", "session %s has no pending rooms", sessionID)
	}

	if rooms[0].AssignmentMethod == models.AssignmentMethodRandom {
		if err := a.repo.AssignParticipants(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	for i := range rooms {
		a.recordChange(ctx, events.ChangeKindUpdate, &rooms[i])
	}
	return rooms, nil
}

// Join admits a participant to an active room and mints a transport
// credential. A participant already bound to a different room may only move
// under SELF_SELECT, and a room with a participant cap rejects new bindings
// once it is full.
func (a *App) Join(ctx context.Context, actor models.Actor, roomID uuid.UUID) (*JoinGrant, error) {
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.BreakoutRoomStatusActive {
		return nil, apperrors.NotFound("breakout_room", "room %s is not active", roomID)
	}

	if actor.IsHost {
		return a.grant(ctx, room, actor.UserID)
	}

	assigned, err := a.repo.GetAssignment(ctx, room.SessionID, actor.UserID)
	if err != nil {
		return nil, err
	}
	selfSelect := room.AssignmentMethod.AllowsSelfSelection()
	if assigned != nil && *assigned != roomID && !selfSelect {
		return nil, apperrors.Conflict("breakout_room", "user %s is assigned to a different room", actor.UserID)
	}
	if assigned == nil || *assigned != roomID {
		if room.MaxParticipants > 0 && room.ParticipantCount >= room.MaxParticipants {
			return nil, apperrors.Conflict("breakout_room", "room %s is full", roomID)
		}
		if err := a.repo.AddMember(ctx, roomID, room.SessionID, actor.UserID, selfSelect); err != nil {
			return nil, err
		}
		room.ParticipantCount++
		a.recordChange(ctx, events.ChangeKindUpdate, room)
	}

	return a.grant(ctx, room, actor.UserID)
}

// HostSwitch lets the host roam between rooms without membership binding.
func (a *App) HostSwitch(ctx context.Context, actor models.Actor, roomID uuid.UUID) (*JoinGrant, error) {
	if err := requireHost(actor, "switch rooms"); err != nil {
		return nil, err
	}

	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != models.BreakoutRoomStatusActive {
		return nil, apperrors.NotFound("breakout_room", "room %s is not active", roomID)
	}

	return a.grant(ctx, room, actor.UserID)
}

// ReturnToMain marks active rooms RETURNING and releases memberships. Clients
// observe the transition and clear their local breakout connection.
func (a *App) ReturnToMain(ctx context.Context, actor models.Actor, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	if err := requireHost(actor, "return rooms to main"); err != nil {
		return nil, err
	}
	return a.returnToMain(ctx, sessionID)
}

// AutoReturn is the scheduler entry point: same transition as ReturnToMain,
// triggered by a room deadline instead of a host action.
func (a *App) AutoReturn(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return a.returnToMain(ctx, sessionID)
}

func (a *App) returnToMain(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	rooms, err := a.repo.ReturnRoomsToMain(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, apperrors.NotFound("breakout_room", "session %s has no active rooms", sessionID)
	}

	for i := range rooms {
		a.recordChange(ctx, events.ChangeKindUpdate, &rooms[i])
	}
	return rooms, nil
}

// Close force-transitions every non-closed room to CLOSED and tears down the
// transport rooms. A RETURNING room stays RETURNING until this call; it never
// closes itself just because it emptied out.
func (a *App) Close(ctx context.Context, actor models.Actor, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	if err := requireHost(actor, "close rooms"); err != nil {
		return nil, err
	}

	rooms, err := a.repo.CloseRooms(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	for i := range rooms {
		if rooms[i].ExternalRoomRef != nil {
			if err := a.video.CloseRoom(ctx, *rooms[i].ExternalRoomRef); err != nil {
				log.Warn().Err(err).Str("room_id", rooms[i].ID.String()).Msg("failed to close transport room")
			}
		}
		a.recordChange(ctx, events.ChangeKindUpdate, &rooms[i])
	}
	return rooms, nil
}

// GetRoom retrieves one room.
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (*models.BreakoutRoom, error) {
	return a.repo.GetRoom(ctx, id)
}

// ListBySession returns every room in the session, closed ones included.
func (a *App) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return a.repo.ListBySession(ctx, sessionID)
}

// FetchNextDeadline exposes the soonest active-room deadline to the scheduler.
func (a *App) FetchNextDeadline(ctx context.Context) (*RoomDeadline, error) {
	return a.repo.FetchNextDeadline(ctx)
}

// FetchSessionsDueForReturn exposes overdue sessions to the scheduler.
func (a *App) FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return a.repo.FetchSessionsDueForReturn(ctx, limit)
}

func (a *App) grant(ctx context.Context, room *models.BreakoutRoom, userID uuid.UUID) (*JoinGrant, error) {
	if room.ExternalRoomRef == nil {
		return nil, apperrors.Internal("breakout_room", fmt.Errorf("room %s has no transport reference", room.ID))
	}
	cred, err := a.video.IssueJoinCredential(ctx, *room.ExternalRoomRef, userID)
	if err != nil {
		return nil, apperrors.Transient("breakout_room", fmt.Errorf("video provider issue credential: %w", err))
	}
	return &JoinGrant{Room: *room, Credential: *cred}, nil
}

func (a *App) validateCreateRoomsRequest(req CreateRoomsRequest) error {
	if len(req.Specs) == 0 {
		return apperrors.Validation("breakout_room", "at least one room spec is required")
	}
	if !req.AssignmentMethod.IsValid() {
		return apperrors.Validation("breakout_room", "unknown assignment method %q", req.AssignmentMethod)
	}
	if req.DurationSec <= 0 {
		return apperrors.Validation("breakout_room", "duration must be positive, got %d", req.DurationSec)
	}
	for _, spec := range req.Specs {
		if spec.Name == "" {
			return apperrors.Validation("breakout_room", "room name is required")
		}
		if spec.MaxParticipants < 0 {
			return apperrors.Validation("breakout_room", "max participants must not be negative")
		}
	}
	return nil
}

func (a *App) recordChange(ctx context.Context, kind events.ChangeKind, room *models.BreakoutRoom) {
	if err := a.outbox.RecordBreakoutRoomChange(ctx, kind, room); err != nil {
		// The fallback poll delivers the change; don't fail the mutation.
		log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to record room change")
	}
}

func requireHost(actor models.Actor, op string) error {
	if !actor.IsHost {
		return apperrors.Conflict("breakout_room", "only the host may %s", op)
	}
	return nil
}
