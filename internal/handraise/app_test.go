package handraise

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/events"
	"github.com/coachdeck/livesession/internal/models"
)

// fakeRepo enforces the same invariants the SQL guards do: one non-terminal
// raise per (session, user), one ACTIVE raise per session.
type fakeRepo struct {
	raises map[uuid.UUID]models.HandRaise
	now    time.Time
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		raises: make(map[uuid.UUID]models.HandRaise),
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeRepo) CreateHandRaise(ctx context.Context, req CreateHandRaiseRequest) (*models.HandRaise, error) {
	for _, hr := range f.raises {
		if hr.SessionID == req.SessionID && hr.UserID == req.UserID && !hr.Status.IsTerminal() {
			return nil, apperrors.Conflict("hand_raise", "user already has a pending hand raise")
		}
	}
	now := f.tick()
	hr := models.HandRaise{
		ID:                 req.ID,
		SessionID:          req.SessionID,
		UserID:             req.UserID,
		UserName:           req.UserName,
		Topic:              req.Topic,
		Status:             models.HandRaiseStatusRaised,
		RaisedAt:           now,
		HotSeatDurationSec: req.HotSeatDurationSec,
		UpdatedAt:          now,
	}
	f.raises[hr.ID] = hr
	return &hr, nil
}

func (f *fakeRepo) GetHandRaise(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	return &hr, nil
}

func (f *fakeRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.HandRaise, error) {
	var out []models.HandRaise
	for _, hr := range f.raises {
		if hr.SessionID == sessionID {
			out = append(out, hr)
		}
	}
	return out, nil
}

func (f *fakeRepo) Acknowledge(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	if hr.Status != models.HandRaiseStatusRaised {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	hr.Status = models.HandRaiseStatusAcknowledged
	hr.UpdatedAt = f.tick()
	f.raises[id] = hr
	return &hr, nil
}

func (f *fakeRepo) Activate(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	for _, other := range f.raises {
		if other.SessionID == hr.SessionID && other.Status == models.HandRaiseStatusActive {
			return nil, apperrors.Conflict("hand_raise", "session %s already has an active hand raise", hr.SessionID)
		}
	}
	if !hr.Status.InQueue() {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	now := f.tick()
	hr.Status = models.HandRaiseStatusActive
	hr.HotSeatStartedAt = &now
	hr.UpdatedAt = now
	f.raises[id] = hr
	return &hr, nil
}

func (f *fakeRepo) Lower(ctx context.Context, id, userID uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	if hr.UserID != userID {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s belongs to another user", id)
	}
	if !hr.Status.InQueue() {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	delete(f.raises, id)
	return &hr, nil
}

func (f *fakeRepo) Extend(ctx context.Context, id uuid.UUID, seconds int) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	if hr.Status != models.HandRaiseStatusActive {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	hr.TimeExtendedSec += seconds
	hr.UpdatedAt = f.tick()
	f.raises[id] = hr
	return &hr, nil
}

func (f *fakeRepo) Complete(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	if hr.Status != models.HandRaiseStatusActive {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	hr.Status = models.HandRaiseStatusCompleted
	hr.UpdatedAt = f.tick()
	f.raises[id] = hr
	return &hr, nil
}

func (f *fakeRepo) Dismiss(ctx context.Context, id uuid.UUID) (*models.HandRaise, error) {
	hr, ok := f.raises[id]
	if !ok {
		return nil, apperrors.NotFound("hand_raise", "hand raise %s not found", id)
	}
	if hr.Status.IsTerminal() {
		return nil, apperrors.Conflict("hand_raise", "hand raise %s is %s", id, hr.Status)
	}
	hr.Status = models.HandRaiseStatusDismissed
	hr.UpdatedAt = f.tick()
	f.raises[id] = hr
	return &hr, nil
}

type fakeOutbox struct {
	records []events.ChangeKind
}

func (f *fakeOutbox) RecordHandRaiseChange(ctx context.Context, kind events.ChangeKind, hr *models.HandRaise) error {
	f.records = append(f.records, kind)
	return nil
}

func newTestApp() (*App, *fakeRepo, *fakeOutbox) {
	repo := newFakeRepo()
	outbox := &fakeOutbox{}
	return NewApp(repo, outbox), repo, outbox
}

func participant(id uuid.UUID) models.Actor {
	return models.Actor{UserID: id, UserName: "participant"}
}

func host() models.Actor {
	return models.Actor{UserID: uuid.New(), UserName: "host", IsHost: true}
}

func TestRaiseDuplicateConflict(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	sessionID := uuid.New()
	user := participant(uuid.New())

	if _, err := app.Raise(ctx, user, sessionID, nil); err != nil {
		t.Fatalf("first raise: %v", err)
	}
	_, err := app.Raise(ctx, user, sessionID, nil)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("second raise error = %v, want Conflict", err)
	}
}

func TestRaiseTopicTooLong(t *testing.T) {
	app, repo, _ := newTestApp()
	topic := strings.Repeat("x", 101)

	_, err := app.Raise(context.Background(), participant(uuid.New()), uuid.New(), &topic)
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Fatalf("error = %v, want Validation", err)
	}
	if len(repo.raises) != 0 {
		t.Fatalf("repository touched on invalid input: %d rows", len(repo.raises))
	}
}

func TestActivateRaceLosesWithConflict(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	sessionID := uuid.New()

	first, err := app.Raise(ctx, participant(uuid.New()), sessionID, nil)
	if err != nil {
		t.Fatalf("raise first: %v", err)
	}
	second, err := app.Raise(ctx, participant(uuid.New()), sessionID, nil)
	if err != nil {
		t.Fatalf("raise second: %v", err)
	}

	h := host()
	if _, err := app.Activate(ctx, h, first.ID); err != nil {
		t.Fatalf("first activate: %v", err)
	}
	_, err = app.Activate(ctx, h, second.ID)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("second activate error = %v, want Conflict", err)
	}
}

func TestLowerAfterActivateConflict(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	sessionID := uuid.New()
	user := participant(uuid.New())

	hr, err := app.Raise(ctx, user, sessionID, nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, err := app.Activate(ctx, host(), hr.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	_, err = app.Lower(ctx, user, hr.ID)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("lower error = %v, want Conflict", err)
	}
}

func TestLowerByOtherUserConflict(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()

	hr, err := app.Raise(ctx, participant(uuid.New()), uuid.New(), nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	_, err = app.Lower(ctx, participant(uuid.New()), hr.ID)
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("lower error = %v, want Conflict", err)
	}
}

func TestHostOnlyOperations(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	user := participant(uuid.New())

	hr, err := app.Raise(ctx, user, uuid.New(), nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}

	ops := map[string]func() error{
		"acknowledge": func() error { _, err := app.Acknowledge(ctx, user, hr.ID); return err },
		"activate":    func() error { _, err := app.Activate(ctx, user, hr.ID); return err },
		"extend":      func() error { _, err := app.Extend(ctx, user, hr.ID, 60); return err },
		"dismiss":     func() error { _, err := app.Dismiss(ctx, user, hr.ID); return err },
	}
	for name, op := range ops {
		if err := op(); !apperrors.IsKind(err, apperrors.KindConflict) {
			t.Errorf("%s by non-host error = %v, want Conflict", name, err)
		}
	}
}

func TestExtendAccumulates(t *testing.T) {
	app, _, _ := newTestApp()
	ctx := context.Background()
	h := host()

	hr, err := app.Raise(ctx, participant(uuid.New()), uuid.New(), nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, err := app.Activate(ctx, h, hr.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := app.Extend(ctx, h, hr.ID, 60); err != nil {
		t.Fatalf("first extend: %v", err)
	}
	got, err := app.Extend(ctx, h, hr.ID, 30)
	if err != nil {
		t.Fatalf("second extend: %v", err)
	}
	if got.TimeExtendedSec != 90 {
		t.Fatalf("TimeExtendedSec = %d, want 90", got.TimeExtendedSec)
	}
}

func TestCompleteOutboxKinds(t *testing.T) {
	app, _, outbox := newTestApp()
	ctx := context.Background()

	hr, err := app.Raise(ctx, participant(uuid.New()), uuid.New(), nil)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if _, err := app.Activate(ctx, host(), hr.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := app.Complete(ctx, hr.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	want := []events.ChangeKind{events.ChangeKindInsert, events.ChangeKindUpdate, events.ChangeKindUpdate}
	if len(outbox.records) != len(want) {
		t.Fatalf("outbox records = %v, want %v", outbox.records, want)
	}
	for i := range want {
		if outbox.records[i] != want[i] {
			t.Fatalf("outbox records = %v, want %v", outbox.records, want)
		}
	}
}
