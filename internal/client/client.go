// Package client is the coordination core that runs inside each connected
// participant: a per-session coordinator object owning a local projection of
// the authoritative state, fed by a realtime push channel and a polling
// backstop, exposing typed commands and read-only views to the rendering
// layer above it.
package client

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/apperrors"
	"github.com/coachdeck/livesession/internal/breakout"
	"github.com/coachdeck/livesession/internal/models"
)

// tickInterval is the countdown recomputation cadence.
const tickInterval = time.Second

// BreakoutConnection is the client-local record of which breakout room this
// participant is currently connected to. Never persisted.
type BreakoutConnection struct {
	IsInBreakout          bool       `json:"is_in_breakout"`
	CurrentBreakoutRoomID *uuid.UUID `json:"current_breakout_room_id,omitempty"`
}

// SessionView is the immutable read projection handed to subscribers on every
// state change. Messages carries the scope the client is currently in: the
// connected breakout room, or the main room otherwise.
type SessionView struct {
	Queue           []models.HandRaise
	ActiveHandRaise *models.HandRaise
	Timer           HotSeatTimerState
	Rooms           []models.BreakoutRoom
	Messages        []models.SessionChatMessage
	Breakout        BreakoutConnection
}

// SendFailure is returned when a chat send fails. It carries the drafted text
// so the caller restores it instead of discarding the user's input.
type SendFailure struct {
	Draft string
	Err   error
}

func (e *SendFailure) Error() string { return e.Err.Error() }
func (e *SendFailure) Unwrap() error { return e.Err }

// Config assembles a session coordinator.
type Config struct {
	SessionID uuid.UUID
	Identity  Identity
	// BaseURL is the coordination API, e.g. http://host:8080.
	BaseURL string
	// Sync tunes the push channel and poll backstop.
	Sync SyncConfig
	// OnHotSeatExpired fires exactly once per activation when the countdown
	// reaches zero. Optional.
	OnHotSeatExpired func(hr models.HandRaise)
	// OnSyncDegraded fires when sync failures pass the threshold. Optional.
	OnSyncDegraded func(err error)
}

// Coordinator is the per-session coordination object. A single dispatch
// goroutine owns the store: push notifications, poll results, timer ticks,
// and mutation responses are all delivered to it over channels, so no
// client-side locking guards the state. Mutating commands block only their
// caller; the dispatch loop stays responsive throughout.
type Coordinator struct {
	sessionID uuid.UUID
	identity  Identity
	api       *API
	sync      *SyncClient
	store     *Store
	clock     clockwork.Clock

	conn             BreakoutConnection
	expiryFired      map[uuid.UUID]bool
	onHotSeatExpired func(models.HandRaise)
	onSyncDegraded   func(error)

	cmdCh  chan func()
	cancel context.CancelFunc
	done   chan struct{}

	subMu       sync.Mutex
	subscribers map[chan SessionView]struct{}
}

// NewCoordinator builds a coordinator for one joined session.
func NewCoordinator(cfg Config) *Coordinator {
	api := NewAPI(cfg.BaseURL, cfg.Identity)
	return &Coordinator{
		sessionID:        cfg.SessionID,
		identity:         cfg.Identity,
		api:              api,
		sync:             NewSyncClient(api, cfg.SessionID, cfg.Identity.UserID, cfg.Sync),
		store:            NewStore(),
		clock:            clockwork.NewRealClock(),
		expiryFired:      make(map[uuid.UUID]bool),
		onHotSeatExpired: cfg.OnHotSeatExpired,
		onSyncDegraded:   cfg.OnSyncDegraded,
		cmdCh:            make(chan func(), 16),
		done:             make(chan struct{}),
		subscribers:      make(map[chan SessionView]struct{}),
	}
}

// WithClock overrides the clock. Test hook.
func (c *Coordinator) WithClock(clock clockwork.Clock) *Coordinator {
	c.clock = clock
	c.sync.WithClock(clock)
	return c
}

// Start launches the sync client and the dispatch loop, then primes the store
// with an initial snapshot request.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.sync.Start(ctx)
	go c.dispatchLoop(ctx)

	// Register on the roster, then prime with a full snapshot; a failure here
	// is recovered by the poll.
	go func() {
		if _, err := c.api.JoinSession(ctx, c.sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", c.sessionID.String()).Msg("roster registration failed")
		}
		snap, err := c.api.Snapshot(ctx, c.sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", c.sessionID.String()).Msg("initial snapshot failed, waiting for poll")
			return
		}
		c.dispatch(func() { c.store.ApplySnapshot(*snap) })
	}()
}

// Close stops the dispatch loop and sync. In-flight mutation requests are not
// cancelled; their responses are simply no longer applied.
func (c *Coordinator) Close() {
	if c.cancel == nil {
		// Never started, so there is no dispatch loop to wait on.
		return
	}
	c.cancel()
	<-c.done
}

// Subscribe registers a view channel. The latest view replaces any unread one,
// so a slow consumer always wakes to current state. Call the returned func to
// unsubscribe.
func (c *Coordinator) Subscribe() (<-chan SessionView, func()) {
	ch := make(chan SessionView, 1)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subscribers, ch)
		c.subMu.Unlock()
	}
}

// View builds the current projection. Runs on the dispatch goroutine via
// Snapshot(); subscribers receive it on every applied change.
func (c *Coordinator) view() SessionView {
	var scope *uuid.UUID
	if c.conn.IsInBreakout {
		scope = c.conn.CurrentBreakoutRoomID
	}
	return SessionView{
		Queue:           c.store.Queue(),
		ActiveHandRaise: c.store.ActiveHandRaise(),
		Timer:           ComputeTimerState(c.store.ActiveHandRaise(), c.clock.Now()),
		Rooms:           c.store.Rooms(),
		Messages:        c.store.Messages(scope),
		Breakout:        c.conn,
	}
}

// Snapshot returns the current view, computed on the dispatch goroutine.
func (c *Coordinator) Snapshot() SessionView {
	result := make(chan SessionView, 1)
	c.dispatch(func() { result <- c.view() })
	select {
	case v := <-result:
		return v
	case <-c.done:
		return SessionView{}
	}
}

func (c *Coordinator) dispatchLoop(ctx context.Context) {
	defer close(c.done)

	ticker := c.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case fn := <-c.cmdCh:
			fn()
			c.afterApply()

		case change := <-c.sync.Changes():
			if err := c.store.ApplyChange(change); err != nil {
				// One unprocessable notification never halts the feed.
				log.Warn().
					Err(err).
					Str("event_id", change.EventID.String()).
					Msg("skipping unprocessable notification")
				continue
			}
			c.afterApply()

		case snap := <-c.sync.Snapshots():
			c.store.ApplySnapshot(snap)
			c.afterApply()

		case <-ticker.Chan():
			c.checkExpiry()
			c.publish()

		case err := <-c.sync.Degraded():
			log.Error().Err(err).Str("session_id", c.sessionID.String()).Msg("sync degraded")
			if c.onSyncDegraded != nil {
				go c.onSyncDegraded(err)
			}
		}
	}
}

// afterApply runs the reactions that follow any state change: clearing the
// local breakout connection when the connected room leaves ACTIVE, the expiry
// check, and fan-out to subscribers.
func (c *Coordinator) afterApply() {
	if c.conn.IsInBreakout && c.conn.CurrentBreakoutRoomID != nil {
		if room := c.store.Room(*c.conn.CurrentBreakoutRoomID); room != nil {
			if room.Status == models.BreakoutRoomStatusReturning || room.Status == models.BreakoutRoomStatusClosed {
				log.Info().
					Str("room_id", room.ID.String()).
					Str("status", string(room.Status)).
					Msg("breakout room ended, returning to main session")
				c.conn = BreakoutConnection{}
			}
		}
	}

	c.checkExpiry()
	c.publish()
}

// checkExpiry fires the expiry callback exactly once per activation. The
// guard is keyed by hand-raise id, so reconnects, re-renders, and duplicate
// notifications cannot re-fire it.
func (c *Coordinator) checkExpiry() {
	active := c.store.ActiveHandRaise()
	timer := ComputeTimerState(active, c.clock.Now())
	if !timer.IsExpired || active == nil {
		return
	}
	if c.expiryFired[active.ID] {
		return
	}
	c.expiryFired[active.ID] = true

	log.Info().
		Str("hand_raise_id", active.ID.String()).
		Str("user_name", active.UserName).
		Msg("hot seat expired")
	if c.onHotSeatExpired != nil {
		go c.onHotSeatExpired(*active)
	}
}

func (c *Coordinator) publish() {
	view := c.view()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- view:
		default:
			// Replace the unread view with the current one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

// dispatch hands fn to the dispatch goroutine. A no-op after Close.
func (c *Coordinator) dispatch(fn func()) {
	select {
	case c.cmdCh <- fn:
	case <-c.done:
	}
}

// --- Hand-raise commands (queue manager) ---

// Raise requests a hot-seat turn. Conflict when the caller already has a
// non-terminal entry.
func (c *Coordinator) Raise(ctx context.Context, topic *string) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Raise(ctx, c.sessionID, topic))
}

// Lower withdraws the caller's own queued raise. Conflict once active.
func (c *Coordinator) Lower(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	hr, err := c.api.Lower(ctx, handRaiseID)
	if err != nil {
		return nil, err
	}
	// Lower removes the row server-side; drop it locally too.
	c.dispatch(func() { c.store.removeHandRaise(hr.ID) })
	return hr, nil
}

// Acknowledge marks a raise as seen by the host. Queue order is unchanged.
func (c *Coordinator) Acknowledge(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Acknowledge(ctx, handRaiseID))
}

// Activate puts a raise on the hot seat. Conflict when another entry is
// already active in the session.
func (c *Coordinator) Activate(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Activate(ctx, handRaiseID))
}

// Extend adds seconds to the active hot seat.
func (c *Coordinator) Extend(ctx context.Context, handRaiseID uuid.UUID, seconds int) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Extend(ctx, handRaiseID, seconds))
}

// CompleteHotSeat ends the active hot seat.
func (c *Coordinator) CompleteHotSeat(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Complete(ctx, handRaiseID))
}

// Dismiss removes a raise from the queue from any non-terminal state.
func (c *Coordinator) Dismiss(ctx context.Context, handRaiseID uuid.UUID) (*models.HandRaise, error) {
	return c.applyHandRaise(c.api.Dismiss(ctx, handRaiseID))
}

func (c *Coordinator) applyHandRaise(hr *models.HandRaise, err error) (*models.HandRaise, error) {
	if err != nil {
		return nil, err
	}
	c.dispatch(func() { c.store.ApplyHandRaise(*hr) })
	return hr, nil
}

// --- Breakout commands ---

// CreateRooms provisions pending rooms. Host only.
func (c *Coordinator) CreateRooms(ctx context.Context, specs []breakout.RoomSpec, method models.AssignmentMethod, durationSec int) ([]models.BreakoutRoom, error) {
	return c.applyRooms(c.api.CreateRooms(ctx, c.sessionID, specs, method, durationSec))
}

// StartRooms activates the pending rooms. Host only.
func (c *Coordinator) StartRooms(ctx context.Context) ([]models.BreakoutRoom, error) {
	return c.applyRooms(c.api.StartRooms(ctx, c.sessionID))
}

// ReturnToMain brings everyone back. Host only.
func (c *Coordinator) ReturnToMain(ctx context.Context) ([]models.BreakoutRoom, error) {
	return c.applyRooms(c.api.ReturnToMain(ctx, c.sessionID))
}

// CloseRooms force-closes any non-closed room. Host only.
func (c *Coordinator) CloseRooms(ctx context.Context) ([]models.BreakoutRoom, error) {
	rooms, err := c.applyRooms(c.api.CloseRooms(ctx, c.sessionID))
	if err != nil {
		return nil, err
	}
	c.dispatch(func() { c.conn = BreakoutConnection{} })
	return rooms, nil
}

func (c *Coordinator) applyRooms(rooms []models.BreakoutRoom, err error) ([]models.BreakoutRoom, error) {
	if err != nil {
		return nil, err
	}
	c.dispatch(func() {
		for _, room := range rooms {
			c.store.ApplyRoom(room)
		}
	})
	return rooms, nil
}

// JoinRoom enters a breakout room and binds the local connection to it.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID uuid.UUID) (*breakout.JoinGrant, error) {
	grant, err := c.api.JoinRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	c.applyGrant(grant)
	return grant, nil
}

// SwitchRoom is the host's roaming variant of JoinRoom.
func (c *Coordinator) SwitchRoom(ctx context.Context, roomID uuid.UUID) (*breakout.JoinGrant, error) {
	grant, err := c.api.HostSwitch(ctx, roomID)
	if err != nil {
		return nil, err
	}
	c.applyGrant(grant)
	return grant, nil
}

func (c *Coordinator) applyGrant(grant *breakout.JoinGrant) {
	roomID := grant.Room.ID
	c.dispatch(func() {
		c.store.ApplyRoom(grant.Room)
		c.conn = BreakoutConnection{IsInBreakout: true, CurrentBreakoutRoomID: &roomID}
	})
}

// --- Chat commands ---

// SendMessage appends a message to the given scope. Out-of-range input is
// rejected locally before any request is issued; a network failure returns a
// SendFailure carrying the draft.
func (c *Coordinator) SendMessage(ctx context.Context, roomID *uuid.UUID, message string, metadata map[string]string) (*models.SessionChatMessage, error) {
	n := utf8.RuneCountInString(message)
	if n < models.ChatMessageMinLen {
		return nil, apperrors.Validation("chat_message", "message must not be empty")
	}
	if n > models.ChatMessageMaxLen {
		return nil, apperrors.Validation("chat_message", "message exceeds %d characters", models.ChatMessageMaxLen)
	}

	msg, err := c.api.SendMessage(ctx, c.sessionID, roomID, message, metadata)
	if err != nil {
		return nil, &SendFailure{Draft: message, Err: err}
	}
	c.dispatch(func() { c.store.ApplyMessage(*msg) })
	return msg, nil
}

// PinMessage pins a message. Host only.
func (c *Coordinator) PinMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	return c.applyMessage(c.api.PinMessage(ctx, messageID))
}

// UnpinMessage unpins a message. Host only.
func (c *Coordinator) UnpinMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	return c.applyMessage(c.api.UnpinMessage(ctx, messageID))
}

// DeleteMessage soft-deletes a message. Host only.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageID uuid.UUID) (*models.SessionChatMessage, error) {
	return c.applyMessage(c.api.DeleteMessage(ctx, messageID))
}

func (c *Coordinator) applyMessage(msg *models.SessionChatMessage, err error) (*models.SessionChatMessage, error) {
	if err != nil {
		return nil, err
	}
	c.dispatch(func() { c.store.ApplyMessage(*msg) })
	return msg, nil
}
