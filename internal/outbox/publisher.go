package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/coachdeck/livesession/internal/events"
)

// Publisher is the bus the listener hands claimed outbox events to.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// JetStreamPublisher publishes entity-change envelopes onto the per-session
// subjects of the SESSION_EVENTS stream.
type JetStreamPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewJetStreamPublisher connects to NATS and ensures the session event stream
// exists.
func NewJetStreamPublisher(ctx context.Context, url string) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      events.StreamName,
		Subjects:  []string{events.SubjectWildcard},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &JetStreamPublisher{nc: nc, js: js}, nil
}

// Publish sends the event's envelope to its session subject.
func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	data, err := json.Marshal(event.Envelope())
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	// The event id doubles as the JetStream dedup id so redelivered claims
	// do not produce duplicate messages.
	_, err = p.js.Publish(ctx, events.Subject(event.SessionID), data,
		jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", events.Subject(event.SessionID), err)
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("session_id", event.SessionID.String()).
		Str("entity_type", string(event.EntityType)).
		Msg("published entity change")

	return nil
}

// Close shuts down the NATS connection.
func (p *JetStreamPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
