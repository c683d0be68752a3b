// Package orchestrator fires deadline-driven breakout transitions. A single
// scheduler loop sleeps until the soonest active-room deadline, then claims
// due sessions and hands them to a worker pool that returns their rooms to
// the main session.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/breakout"
	"github.com/coachdeck/livesession/internal/models"
)

// Clock is the interface we use for time operations. In production, use
// clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// BreakoutApp defines what the orchestrator needs from the breakout app.
type BreakoutApp interface {
	FetchNextDeadline(ctx context.Context) (*breakout.RoomDeadline, error)
	FetchSessionsDueForReturn(ctx context.Context, limit int32) ([]uuid.UUID, error)
	AutoReturn(ctx context.Context, sessionID uuid.UUID) ([]models.BreakoutRoom, error)
}

type Orchestrator struct {
	breakoutApp BreakoutApp
	batchSize   int32
	clock       Clock
	wakeCh      chan struct{}
	instanceID  string

	numWorkers int
	workCh     chan uuid.UUID

	// Track in-flight work to prevent duplicate processing.
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// NewOrchestrator creates a new deadline orchestrator with a worker pool.
func NewOrchestrator(breakoutApp BreakoutApp, batchSize int32) *Orchestrator {
	numWorkers := 4
	return &Orchestrator{
		breakoutApp: breakoutApp,
		batchSize:   batchSize,
		clock:       clockwork.NewRealClock(),
		wakeCh:      make(chan struct{}, 1),
		instanceID:  uuid.New().String()[:8],

		numWorkers: numWorkers,
		workCh:     make(chan uuid.UUID, numWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// WithClock overrides the clock. Test hook.
func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	o.clock = clock
	return o
}

// Wake nudges the scheduler to re-fetch the next deadline. Called after a
// mutation that may have produced a sooner deadline.
func (o *Orchestrator) Wake() {
	select {
	case o.wakeCh <- struct{}{}:
	default:
	}
}

// RunScheduler loops forever, sleeping until the next deadline and firing
// auto-returns. Blocks until ctx is done.
func (o *Orchestrator) RunScheduler(ctx context.Context) error {
	log.Info().Str("instance", o.instanceID).Int("workers", o.numWorkers).Msg("scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	for i := 0; i < o.numWorkers; i++ {
		wg.Add(1)
		go o.worker(workerCtx, &wg, i)
	}

	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		cancelWorkers()
		close(o.workCh)
		wg.Wait()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	timer := o.clock.NewTimer(0)
	defer timer.Stop()

	const idlePollDuration = 5 * time.Second
	retryCount := 0
	const maxRetries = 3

	for {
		select {
		case <-o.wakeCh:
			log.Debug().Str("instance", o.instanceID).Msg("drained wake channel")
		default:
		}

		nd, err := o.breakoutApp.FetchNextDeadline(ctx)
		if err != nil {
			retryCount++
			if retryCount <= maxRetries {
				log.Error().
					Err(err).
					Int("retry", retryCount).
					Str("instance", o.instanceID).
					Msg("error fetching next deadline, retrying")
				timer.Reset(time.Second * time.Duration(retryCount))
				select {
				case <-timer.Chan():
					continue
				case <-ctx.Done():
					return nil
				}
			}
			log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching next deadline after retries")
			return err
		}
		retryCount = 0

		if nd == nil || nd.Deadline == nil {
			// No active rooms; idle with timer reuse.
			log.Debug().Str("instance", o.instanceID).Msg("no active room deadlines; polling again in 5s")
			timer.Reset(idlePollDuration)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				log.Info().Str("instance", o.instanceID).Msg("shutdown during idle")
				return nil
			case <-o.wakeCh:
				log.Debug().Str("instance", o.instanceID).Msg("woken up from idle")
				continue
			}
		}

		wait := nd.Deadline.Sub(o.clock.Now())
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-timer.Chan():
				log.Info().Str("instance", o.instanceID).Msg("timer fired, fetching due sessions")
			case <-ctx.Done():
				log.Info().Str("instance", o.instanceID).Msg("shutdown during wait")
				return nil
			case <-o.wakeCh:
				log.Debug().Str("instance", o.instanceID).Msg("woken up early, new sooner deadline")
				continue
			}
		}

		due, err := o.breakoutApp.FetchSessionsDueForReturn(ctx, o.batchSize)
		if err != nil {
			log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching due sessions")
			timer.Reset(time.Second)
			select {
			case <-timer.Chan():
				continue
			case <-ctx.Done():
				return nil
			}
		}

		if len(due) > 0 {
			log.Info().
				Int("count_due", len(due)).
				Int32("batch_size", o.batchSize).
				Str("instance", o.instanceID).
				Msg("processing due sessions")

			for _, sessionID := range due {
				o.inFlightMu.Lock()
				if o.inFlight[sessionID] {
					o.inFlightMu.Unlock()
					log.Debug().Str("session_id", sessionID.String()).Str("instance", o.instanceID).Msg("skipping session already in flight")
					continue
				}
				o.inFlight[sessionID] = true
				o.inFlightMu.Unlock()

				select {
				case <-ctx.Done():
					o.inFlightMu.Lock()
					delete(o.inFlight, sessionID)
					o.inFlightMu.Unlock()
					log.Info().Str("instance", o.instanceID).Msg("shutdown while queueing returns")
					return nil
				case o.workCh <- sessionID:
					log.Debug().Str("session_id", sessionID.String()).Str("instance", o.instanceID).Msg("queued auto-return for worker")
				}
			}
		}
	}
}

// handleDeadline returns one session's rooms to main. The repository's guarded
// transition makes this idempotent: a session already returned yields zero
// rows and a NotFound, which is logged and dropped.
func (o *Orchestrator) handleDeadline(ctx context.Context, sessionID uuid.UUID) error {
	log.Info().Str("session_id", sessionID.String()).Msg("breakout deadline firing")

	rooms, err := o.breakoutApp.AutoReturn(ctx, sessionID)
	if err != nil {
		return err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Int("rooms", len(rooms)).
		Msg("rooms returned to main session")
	return nil
}

func (o *Orchestrator) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	log.Info().
		Str("instance", o.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("instance", o.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case sessionID, ok := <-o.workCh:
			if !ok {
				log.Info().
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("work channel closed, worker shutting down")
				return
			}

			if err := o.handleDeadline(ctx, sessionID); err != nil {
				log.Error().
					Err(err).
					Str("session_id", sessionID.String()).
					Str("instance", o.instanceID).
					Int("worker_id", workerID).
					Msg("auto-return failed")
			}

			o.inFlightMu.Lock()
			delete(o.inFlight, sessionID)
			o.inFlightMu.Unlock()
		}
	}
}
