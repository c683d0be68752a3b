package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/coachdeck/livesession/internal/breakout"
	"github.com/coachdeck/livesession/internal/models"
)

type fakeBreakoutApp struct {
	mu          sync.Mutex
	sessionID   uuid.UUID
	deadline    time.Time
	returned    bool
	autoReturns int

	clock clockwork.Clock
	// AutoReturn blocks here so a session stays in flight while the scheduler
	// keeps looping.
	release chan struct{}
	called  chan uuid.UUID
}

func newFakeBreakoutApp(clock clockwork.Clock, sessionID uuid.UUID, deadline time.Time) *fakeBreakoutApp {
	return &fakeBreakoutApp{
		sessionID: sessionID,
		deadline:  deadline,
		clock:     clock,
		release:   make(chan struct{}),
		called:    make(chan uuid.UUID, 8),
	}
}

func (f *fakeBreakoutApp) FetchNextDeadline(ctx context.Context) (*breakout.RoomDeadline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returned {
		return nil, nil
	}
	deadline := f.deadline
	return &breakout.RoomDeadline{SessionID: f.sessionID, Deadline: &deadline}, nil
}

func (f *fakeBreakoutApp) FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returned || f.clock.Now().Before(f.deadline) {
		return nil, nil
	}
	// The same session reported twice in one batch, as two overdue rooms
	// would produce before the repository groups them.
	return []uuid.UUID{f.sessionID, f.sessionID}, nil
}

func (f *fakeBreakoutApp) AutoReturn(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	f.mu.Lock()
	f.autoReturns++
	f.returned = true
	f.mu.Unlock()

	f.called <- sessionID
	<-f.release
	return []models.BreakoutRoom{{ID: uuid.New(), SessionID: sessionID, Status: models.BreakoutRoomStatusReturning}}, nil
}

func (f *fakeBreakoutApp) autoReturnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoReturns
}

func TestSchedulerFiresAutoReturnOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sessionID := uuid.New()
	app := newFakeBreakoutApp(clock, sessionID, clock.Now().Add(10*time.Minute))

	o := NewOrchestrator(app, 20).WithClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.RunScheduler(ctx) }()

	// Scheduler fetched the deadline and parked on its timer.
	clock.BlockUntil(1)
	clock.Advance(10 * time.Minute)

	select {
	case got := <-app.called:
		if got != sessionID {
			t.Fatalf("auto-return session = %s, want %s", got, sessionID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deadline never fired an auto-return")
	}

	// The duplicate batch entry was skipped while the first is still in
	// flight; once released, the session is returned and the scheduler idles.
	close(app.release)
	clock.BlockUntil(1)

	if got := app.autoReturnCount(); got != 1 {
		t.Fatalf("AutoReturn called %d times, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunScheduler returned %v on shutdown, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not shut down")
	}
}

func TestWakePreemptsIdle(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sessionID := uuid.New()
	app := newFakeBreakoutApp(clock, sessionID, clock.Now().Add(time.Hour))
	app.returned = true // start with nothing scheduled

	o := NewOrchestrator(app, 20).WithClock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- o.RunScheduler(ctx) }()

	// Idle on the 5s poll timer.
	clock.BlockUntil(1)

	// A mutation produced a deadline already in the past; Wake makes the
	// scheduler pick it up without waiting out the idle poll.
	app.mu.Lock()
	app.returned = false
	app.deadline = clock.Now().Add(-time.Second)
	app.mu.Unlock()
	o.Wake()

	select {
	case got := <-app.called:
		if got != sessionID {
			t.Fatalf("auto-return session = %s, want %s", got, sessionID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wake did not trigger the overdue auto-return")
	}
	close(app.release)

	cancel()
	<-done
}

type failingBreakoutApp struct{}

func (failingBreakoutApp) FetchNextDeadline(ctx context.Context) (*breakout.RoomDeadline, error) {
	return nil, errors.New("connection refused")
}

func (failingBreakoutApp) FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error) {
	return nil, errors.New("connection refused")
}

func (failingBreakoutApp) AutoReturn(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error) {
	return nil, errors.New("connection refused")
}

func TestSchedulerGivesUpAfterRetries(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	o := NewOrchestrator(failingBreakoutApp{}, 20).WithClock(clock)

	done := make(chan error, 1)
	go func() { done <- o.RunScheduler(context.Background()) }()

	// Walk through the three backoff sleeps (1s, 2s, 3s).
	for i := 1; i <= 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(time.Duration(i) * time.Second)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("RunScheduler returned nil after exhausting retries")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not give up after retries")
	}
}
