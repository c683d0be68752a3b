package breakout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

type fakeBreakoutRepo struct {
	rooms        map[uuid.UUID]models.BreakoutRoom
	order        []uuid.UUID
	members      map[uuid.UUID]uuid.UUID // userID -> roomID
	participants []uuid.UUID
	now          time.Time
}

func newFakeBreakoutRepo(participants ...uuid.UUID) *fakeBreakoutRepo {
	return &fakeBreakoutRepo{
		rooms:        make(map[uuid.UUID]models.BreakoutRoom),
		members:      make(map[uuid.UUID]uuid.UUID),
		participants: participants,
		now:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBreakoutRepo) CreateRooms(ctx context.Context, req CreateRoomsRequest, externalRefs []string) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for i, spec := range req.Specs {
		ref := externalRefs[i]
		room := models.BreakoutRoom{
			ID:               uuid.New(),
			SessionID:        req.SessionID,
			Name:             spec.Name,
			Topic:            spec.Topic,
			Status:           models.BreakoutRoomStatusPending,
			AssignmentMethod: req.AssignmentMethod,
			DurationSec:      req.DurationSec,
			MaxParticipants:  spec.MaxParticipants,
			ExternalRoomRef:  &ref,
			UpdatedAt:        f.now,
		}
		f.rooms[room.ID] = room
		f.order = append(f.order, room.ID)
		out = append(out, room)
	}
	return out, nil
}

func (f *fakeBreakoutRepo) GetRoom(ctx context.Context, id uuid.UUID) (*models.BreakoutRoom, error) {
	room, ok := f.rooms[id]
	if !ok {
		return nil, apperrors.NotFound("breakout_room", "room %s not found", id)
	}
	count := 0
	for _, roomID := range f.members {
		if roomID == id {
			count++
		}
	}
	room.ParticipantCount = count
	return &room, nil
}

func (f *fakeBreakoutRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for _, id := range f.order {
		if f.rooms[id].SessionID == sessionID {
			out = append(out, f.rooms[id])
		}
	}
	return out, nil
}

func (f *fakeBreakoutRepo) StartRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for _, id := range f.order {
		room := f.rooms[id]
		if room.SessionID != sessionID || room.Status != models.BreakoutRoomStatusPending {
			continue
		}
		started := f.now
		ends := started.Add(time.Duration(room.DurationSec) * time.Second)
		room.Status = models.BreakoutRoomStatusActive
		room.StartedAt = &started
		room.EndsAt = &ends
		room.UpdatedAt = f.now
		f.rooms[id] = room
		out = append(out, room)
	}
	return out, nil
}

func (f *fakeBreakoutRepo) AssignParticipants(ctx context.Context, sessionID uuid.UUID) error {
	var active []uuid.UUID
	for _, id := range f.order {
		if f.rooms[id].SessionID == sessionID && f.rooms[id].Status == models.BreakoutRoomStatusActive {
			active = append(active, id)
		}
	}
	if len(active) == 0 {
		return nil
	}
	i := 0
	for _, userID := range f.participants {
		if _, assigned := f.members[userID]; assigned {
			continue
		}
		f.members[userID] = active[i%len(active)]
		i++
	}
	return nil
}

func (f *fakeBreakoutRepo) GetAssignment(ctx context.Context, sessionID, userID uuid.UUID) (*uuid.UUID, error) {
	if roomID, ok := f.members[userID]; ok {
		return &roomID, nil
	}
	return nil, nil
}

func (f *fakeBreakoutRepo) AddMember(ctx context.Context, roomID, sessionID, userID uuid.UUID, move bool) error {
	if _, exists := f.members[userID]; exists && !move {
		return nil
	}
	f.members[userID] = roomID
	return nil
}

func (f *fakeBreakoutRepo) ReturnRoomsToMain(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for _, id := range f.order {
		room := f.rooms[id]
		if room.SessionID != sessionID || room.Status != models.BreakoutRoomStatusActive {
			continue
		}
		room.Status = models.BreakoutRoomStatusReturning
		room.ParticipantCount = 0
		room.UpdatedAt = f.now
		f.rooms[id] = room
		out = append(out, room)
	}
	if len(out) > 0 {
		f.members = make(map[uuid.UUID]uuid.UUID)
	}
	return out, nil
}

func (f *fakeBreakoutRepo) CloseRooms(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	var out []models.BreakoutRoom
	for _, id := range f.order {
		room := f.rooms[id]
		if room.SessionID != sessionID || room.Status == models.BreakoutRoomStatusClosed {
			continue
		}
		room.Status = models.BreakoutRoomStatusClosed
		room.ParticipantCount = 0
		room.UpdatedAt = f.now
		f.rooms[id] = room
		out = append(out, room)
	}
	f.members = make(map[uuid.UUID]uuid.UUID)
	return out, nil
}

func (f *fakeBreakoutRepo) FetchNextDeadline(ctx context.Context) (*RoomDeadline, error) {
	var nd *RoomDeadline
	for _, room := range f.rooms {
		if room.Status != models.BreakoutRoomStatusActive || room.EndsAt == nil {
			continue
		}
		if nd == nil || room.EndsAt.Before(*nd.Deadline) {
			deadline := *room.EndsAt
			nd = &RoomDeadline{SessionID: room.SessionID, Deadline: &deadline}
		}
	}
	return nd, nil
}

func (f *fakeBreakoutRepo) FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, room := range f.rooms {
		if room.Status == models.BreakoutRoomStatusActive && room.EndsAt != nil && !room.EndsAt.After(f.now) && !seen[room.SessionID] {
			seen[room.SessionID] = true
			out = append(out, room.SessionID)
		}
	}
	return out, nil
}

type fakeRoomOutbox struct {
	records []events.ChangeKind
}

func (f *fakeRoomOutbox) RecordBreakoutRoomChange(ctx context.Context, kind events.ChangeKind, room *models.BreakoutRoom) error {
	f.records = append(f.records, kind)
	return nil
}

type fakeVideo struct {
	created     int
	credentials int
	closed      int
}

func (f *fakeVideo) CreateRoom(ctx context.Context, sessionID uuid.UUID, name string) (string, error) {
	f.created++
	return fmt.Sprintf("ext-%d", f.created), nil
}

func (f *fakeVideo) IssueJoinCredential(ctx context.Context, externalRef string, userID uuid.UUID) (*JoinCredential, error) {
	f.credentials++
	return &JoinCredential{RoomHandle: externalRef, Token: uuid.NewString(), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeVideo) CloseRoom(ctx context.Context, externalRef string) error {
	f.closed++
	return nil
}

func hostActor() models.Actor {
	return models.Actor{UserID: uuid.New(), UserName: "host", IsHost: true}
}

func specs(n int) []RoomSpec {
	out := make([]RoomSpec, n)
	for i := range out {
		out[i] = RoomSpec{Name: fmt.Sprintf("Room %d", i+1)}
	}
	return out
}

// Covers the full random-assignment flow: three rooms created and started,
// every participant assigned exactly one room, join credentials minted, and
// return-to-main releasing the memberships.
func TestRandomBreakoutFlow(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	alice := models.Actor{UserID: uuid.New(), UserName: "alice"}
	bob := models.Actor{UserID: uuid.New(), UserName: "bob"}

	repo := newFakeBreakoutRepo(alice.UserID, bob.UserID)
	video := &fakeVideo{}
	app := NewApp(repo, &fakeRoomOutbox{}, video)
	h := hostActor()

	rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            specs(3),
		AssignmentMethod: models.AssignmentMethodRandom,
		DurationSec:      600,
	})
	if err != nil {
		t.Fatalf("create rooms: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("created %d rooms, want 3", len(rooms))
	}
	if video.created != 3 {
		t.Fatalf("video provider created %d rooms, want 3", video.created)
	}

	started, err := app.StartRooms(ctx, h, sessionID)
	if err != nil {
		t.Fatalf("start rooms: %v", err)
	}
	for _, room := range started {
		if room.Status != models.BreakoutRoomStatusActive {
			t.Fatalf("room %s status = %s, want ACTIVE", room.Name, room.Status)
		}
		if room.EndsAt == nil {
			t.Fatalf("room %s has no deadline after start", room.Name)
		}
	}

	// Every participant holds exactly one assignment.
	for _, actor := range []models.Actor{alice, bob} {
		assigned, err := repo.GetAssignment(ctx, sessionID, actor.UserID)
		if err != nil {
			t.Fatalf("get assignment: %v", err)
		}
		if assigned == nil {
			t.Fatalf("%s has no room assignment after start", actor.UserName)
		}

		grant, err := app.Join(ctx, actor, *assigned)
		if err != nil {
			t.Fatalf("%s join: %v", actor.UserName, err)
		}
		if grant.Credential.Token == "" || grant.Credential.RoomHandle == "" {
			t.Fatalf("%s received empty credential", actor.UserName)
		}
	}
	if video.credentials != 2 {
		t.Fatalf("issued %d credentials, want 2", video.credentials)
	}

	returned, err := app.ReturnToMain(ctx, h, sessionID)
	if err != nil {
		t.Fatalf("return to main: %v", err)
	}
	for _, room := range returned {
		if room.Status != models.BreakoutRoomStatusReturning {
			t.Fatalf("room %s status = %s, want RETURNING", room.Name, room.Status)
		}
		if room.ParticipantCount != 0 {
			t.Fatalf("room %s still has %d participants after return", room.Name, room.ParticipantCount)
		}
	}
	if len(repo.members) != 0 {
		t.Fatalf("memberships not cleared: %v", repo.members)
	}
}

func TestJoinRoomNotActive(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	user := models.Actor{UserID: uuid.New(), UserName: "alice"}
	repo := newFakeBreakoutRepo(user.UserID)
	app := NewApp(repo, &fakeRoomOutbox{}, &fakeVideo{})
	h := hostActor()

	rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            specs(1),
		AssignmentMethod: models.AssignmentMethodSelfSelect,
		DurationSec:      300,
	})
	if err != nil {
		t.Fatalf("create rooms: %v", err)
	}

	// Pending room: not joinable yet.
	if _, err := app.Join(ctx, user, rooms[0].ID); !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("join pending room error = %v, want NotFound", err)
	}

	if _, err := app.StartRooms(ctx, h, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := app.Close(ctx, h, sessionID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := app.Join(ctx, user, rooms[0].ID); !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("join closed room error = %v, want NotFound", err)
	}
}

func TestJoinOtherRoomRequiresSelfSelect(t *testing.T) {
	ctx := context.Background()
	user := models.Actor{UserID: uuid.New(), UserName: "alice"}

	tests := []struct {
		method   models.AssignmentMethod
		wantMove bool
	}{
		{models.AssignmentMethodRandom, false},
		{models.AssignmentMethodSelfSelect, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			sessionID := uuid.New()
			repo := newFakeBreakoutRepo(user.UserID)
			app := NewApp(repo, &fakeRoomOutbox{}, &fakeVideo{})
			h := hostActor()

			rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
				SessionID:        sessionID,
				Specs:            specs(2),
				AssignmentMethod: tt.method,
				DurationSec:      300,
			})
			if err != nil {
				t.Fatalf("create rooms: %v", err)
			}
			if _, err := app.StartRooms(ctx, h, sessionID); err != nil {
				t.Fatalf("start: %v", err)
			}

			// Bind the user to the first room, then try the second.
			if _, err := app.Join(ctx, user, rooms[0].ID); err != nil {
				t.Fatalf("first join: %v", err)
			}
			_, err = app.Join(ctx, user, rooms[1].ID)
			if tt.wantMove {
				if err != nil {
					t.Fatalf("self-select move failed: %v", err)
				}
				assigned, _ := repo.GetAssignment(ctx, sessionID, user.UserID)
				if assigned == nil || *assigned != rooms[1].ID {
					t.Fatalf("assignment = %v, want %s", assigned, rooms[1].ID)
				}
			} else {
				if !apperrors.IsKind(err, apperrors.KindConflict) {
					t.Fatalf("join other room error = %v, want Conflict", err)
				}
			}
		})
	}
}

func TestJoinFullRoomConflict(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	alice := models.Actor{UserID: uuid.New(), UserName: "alice"}
	bob := models.Actor{UserID: uuid.New(), UserName: "bob"}
	repo := newFakeBreakoutRepo(alice.UserID, bob.UserID)
	app := NewApp(repo, &fakeRoomOutbox{}, &fakeVideo{})
	h := hostActor()

	rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            []RoomSpec{{Name: "Room 1", MaxParticipants: 1}},
		AssignmentMethod: models.AssignmentMethodSelfSelect,
		DurationSec:      300,
	})
	if err != nil {
		t.Fatalf("create rooms: %v", err)
	}
	if _, err := app.StartRooms(ctx, h, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := app.Join(ctx, alice, rooms[0].ID); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := app.Join(ctx, bob, rooms[0].ID); !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("join full room error = %v, want Conflict", err)
	}

	// A participant already bound to the room rejoins freely: the cap gates
	// new bindings, not reconnects.
	if _, err := app.Join(ctx, alice, rooms[0].ID); err != nil {
		t.Fatalf("rejoin: %v", err)
	}

	// The host roams past the cap.
	if _, err := app.Join(ctx, h, rooms[0].ID); err != nil {
		t.Fatalf("host join: %v", err)
	}
}

func TestHostRoamsBetweenRooms(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	repo := newFakeBreakoutRepo()
	app := NewApp(repo, &fakeRoomOutbox{}, &fakeVideo{})
	h := hostActor()

	rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            specs(2),
		AssignmentMethod: models.AssignmentMethodManual,
		DurationSec:      300,
	})
	if err != nil {
		t.Fatalf("create rooms: %v", err)
	}
	if _, err := app.StartRooms(ctx, h, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, room := range rooms {
		if _, err := app.HostSwitch(ctx, h, room.ID); err != nil {
			t.Fatalf("host switch to %s: %v", room.Name, err)
		}
	}
	// The host is never membership-bound.
	if len(repo.members) != 0 {
		t.Fatalf("host switching created memberships: %v", repo.members)
	}
}

func TestCreateRoomsValidation(t *testing.T) {
	ctx := context.Background()
	app := NewApp(newFakeBreakoutRepo(), &fakeRoomOutbox{}, &fakeVideo{})
	h := hostActor()

	tests := []struct {
		name string
		req  CreateRoomsRequest
	}{
		{"no specs", CreateRoomsRequest{SessionID: uuid.New(), AssignmentMethod: models.AssignmentMethodRandom, DurationSec: 300}},
		{"bad method", CreateRoomsRequest{SessionID: uuid.New(), Specs: specs(1), AssignmentMethod: "COIN_FLIP", DurationSec: 300}},
		{"zero duration", CreateRoomsRequest{SessionID: uuid.New(), Specs: specs(1), AssignmentMethod: models.AssignmentMethodRandom}},
		{"unnamed room", CreateRoomsRequest{SessionID: uuid.New(), Specs: []RoomSpec{{}}, AssignmentMethod: models.AssignmentMethodRandom, DurationSec: 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := app.CreateRooms(ctx, h, tt.req); !apperrors.IsKind(err, apperrors.KindValidation) {
				t.Fatalf("error = %v, want Validation", err)
			}
		})
	}
}

func TestReturningRoomStaysUntilClosed(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()
	repo := newFakeBreakoutRepo()
	app := NewApp(repo, &fakeRoomOutbox{}, &fakeVideo{})
	h := hostActor()

	rooms, err := app.CreateRooms(ctx, h, CreateRoomsRequest{
		SessionID:        sessionID,
		Specs:            specs(1),
		AssignmentMethod: models.AssignmentMethodManual,
		DurationSec:      300,
	})
	if err != nil {
		t.Fatalf("create rooms: %v", err)
	}
	if _, err := app.StartRooms(ctx, h, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := app.ReturnToMain(ctx, h, sessionID); err != nil {
		t.Fatalf("return: %v", err)
	}

	// Empty and RETURNING, but not closed until the explicit close.
	room, err := app.GetRoom(ctx, rooms[0].ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Status != models.BreakoutRoomStatusReturning {
		t.Fatalf("status = %s, want RETURNING", room.Status)
	}

	closed, err := app.Close(ctx, h, sessionID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed[0].Status != models.BreakoutRoomStatusClosed {
		t.Fatalf("status = %s, want CLOSED", closed[0].Status)
	}
}
