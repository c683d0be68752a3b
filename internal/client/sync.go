package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/events"
)

// SyncConfig tunes the event synchronization client.
type SyncConfig struct {
	// WebsocketURL is the gateway endpoint, e.g. ws://host/ws/session.
	WebsocketURL string
	// PollInterval is the full-resync cadence. The poll is a staleness
	// backstop: it heals any notification the push channel missed.
	PollInterval time.Duration
	// ReconnectMinWait and ReconnectMaxWait bound the capped backoff between
	// websocket dial attempts.
	ReconnectMinWait time.Duration
	ReconnectMaxWait time.Duration
	// FailureThreshold is how many consecutive poll failures pass silently
	// before the degradation is surfaced.
	FailureThreshold int
}

// DefaultSyncConfig returns the standard sync tuning.
func DefaultSyncConfig(websocketURL string) SyncConfig {
	return SyncConfig{
		WebsocketURL:     websocketURL,
		PollInterval:     30 * time.Second,
		ReconnectMinWait: time.Second,
		ReconnectMaxWait: 30 * time.Second,
		FailureThreshold: 3,
	}
}

// SyncClient feeds the coordinator's dispatch loop from two producers: the
// per-session websocket push channel and the periodic snapshot poll. Both
// merge through the store's single apply path, so duplicates and reordering
// are harmless. Transient failures recover locally; they surface on the
// degraded channel only past the failure threshold.
type SyncClient struct {
	api       *API
	sessionID uuid.UUID
	userID    uuid.UUID
	config    SyncConfig
	clock     clockwork.Clock

	changeCh   chan events.EntityChange
	snapshotCh chan events.SessionSnapshot
	degradedCh chan error
}

func NewSyncClient(api *API, sessionID, userID uuid.UUID, config SyncConfig) *SyncClient {
	return &SyncClient{
		api:        api,
		sessionID:  sessionID,
		userID:     userID,
		config:     config,
		clock:      clockwork.NewRealClock(),
		changeCh:   make(chan events.EntityChange, 64),
		snapshotCh: make(chan events.SessionSnapshot, 4),
		degradedCh: make(chan error, 1),
	}
}

// WithClock overrides the clock. Test hook.
func (sc *SyncClient) WithClock(clock clockwork.Clock) *SyncClient {
	sc.clock = clock
	return sc
}

// Changes delivers decoded push notifications.
func (sc *SyncClient) Changes() <-chan events.EntityChange { return sc.changeCh }

// Snapshots delivers poll results.
func (sc *SyncClient) Snapshots() <-chan events.SessionSnapshot { return sc.snapshotCh }

// Degraded reports sustained sync failure past the threshold.
func (sc *SyncClient) Degraded() <-chan error { return sc.degradedCh }

// Start launches the push and poll loops. They run until ctx is done.
func (sc *SyncClient) Start(ctx context.Context) {
	go sc.pushLoop(ctx)
	go sc.pollLoop(ctx)
}

// pushLoop dials the gateway and reads notifications, reconnecting with
// capped backoff on any failure. A malformed notification is logged and
// skipped; it never aborts the subscription.
func (sc *SyncClient) pushLoop(ctx context.Context) {
	wait := sc.config.ReconnectMinWait

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := sc.dial(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sc.sessionID.String()).
				Dur("retry_in", wait).
				Msg("websocket dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-sc.clock.After(wait):
			}
			wait *= 2
			if wait > sc.config.ReconnectMaxWait {
				wait = sc.config.ReconnectMaxWait
			}
			continue
		}
		wait = sc.config.ReconnectMinWait

		sc.readConnection(ctx, conn)
		conn.Close()
	}
}

func (sc *SyncClient) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s?session_id=%s&user_id=%s", sc.config.WebsocketURL, sc.sessionID, sc.userID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sc.config.WebsocketURL, err)
	}
	log.Info().Str("session_id", sc.sessionID.String()).Msg("subscribed to session event channel")
	return conn, nil
}

func (sc *SyncClient) readConnection(ctx context.Context, conn *websocket.Conn) {
	// Unblock the read when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("session_id", sc.sessionID.String()).Msg("websocket read failed, reconnecting")
			}
			return
		}

		var change events.EntityChange
		if err := json.Unmarshal(raw, &change); err != nil {
			log.Warn().Err(err).Str("session_id", sc.sessionID.String()).Msg("malformed notification skipped")
			continue
		}
		if !change.EntityType.IsValid() {
			log.Warn().
				Str("entity_type", string(change.EntityType)).
				Str("session_id", sc.sessionID.String()).
				Msg("unknown entity type in notification, skipped")
			continue
		}

		select {
		case sc.changeCh <- change:
		case <-ctx.Done():
			return
		}
	}
}

// pollLoop fetches the full snapshot every interval. Poll results flow through
// the identical apply path as push notifications.
func (sc *SyncClient) pollLoop(ctx context.Context) {
	ticker := sc.clock.NewTicker(sc.config.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		snap, err := sc.api.Snapshot(ctx, sc.sessionID)
		if err != nil {
			failures++
			log.Warn().
				Err(err).
				Int("consecutive_failures", failures).
				Str("session_id", sc.sessionID.String()).
				Msg("snapshot poll failed")
			if failures == sc.config.FailureThreshold {
				select {
				case sc.degradedCh <- fmt.Errorf("sync degraded after %d poll failures: %w", failures, err):
				default:
				}
			}
			continue
		}
		failures = 0

		select {
		case sc.snapshotCh <- *snap:
		case <-ctx.Done():
			return
		}
	}
}
