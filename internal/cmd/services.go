package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachdeck/livesession/internal/breakout"
	"github.com/coachdeck/livesession/internal/chat"
	"github.com/coachdeck/livesession/internal/dbconfig"
	"github.com/coachdeck/livesession/internal/gateway"
	"github.com/coachdeck/livesession/internal/handraise"
	"github.com/coachdeck/livesession/internal/orchestrator"
	"github.com/coachdeck/livesession/internal/outbox"
	"github.com/coachdeck/livesession/internal/participant"
)

// Services bundles everything the server process runs.
type Services struct {
	HandRaise   *handraise.Service
	Breakout    *breakout.Service
	Chat        *chat.Service
	Participant *participant.Service

	HandRaiseApp *handraise.App
	BreakoutApp  *breakout.App
	ChatApp      *chat.App

	OutboxListener *outbox.Listener
	Publisher      *outbox.JetStreamPublisher

	ConnManager      *gateway.ConnectionManager
	WebsocketHandler *gateway.WebSocketHandler
	EventConsumer    *gateway.EventConsumer
	SnapshotHandler  *gateway.SnapshotHandler

	Orchestrator *orchestrator.Orchestrator
}

// setupServices wires the dependency chain:
// pool -> repositories -> apps -> HTTP services, plus the outbox relay, the
// gateway fan-out, and the deadline orchestrator.
func setupServices(ctx context.Context, pool *pgxpool.Pool, dbCfg dbconfig.Config, cfg *Config) (*Services, error) {
	// Outbox
	outboxRepo := outbox.NewRepository(pool)
	outboxApp := outbox.NewApp(outboxRepo)

	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	publisher, err := outbox.NewJetStreamPublisher(ctx, natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	if cfg.Outbox.NotifyChannel != "" {
		listenerCfg.NotifyChannel = cfg.Outbox.NotifyChannel
	}
	if cfg.Outbox.BatchSize > 0 {
		listenerCfg.BatchSize = cfg.Outbox.BatchSize
	}
	listenerCfg.FallbackInterval = secondsOrDefault(cfg.Outbox.FallbackIntervalSec, listenerCfg.FallbackInterval)
	listener, err := outbox.NewListener(outboxRepo, publisher, listenerCfg)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}

	// Hand raise
	handRaiseRepo := handraise.NewRepository(pool)
	handRaiseApp := handraise.NewApp(handRaiseRepo, outboxApp)
	handRaiseService := handraise.NewService(handRaiseApp)

	// Breakout
	breakoutRepo := breakout.NewRepository(pool)
	video := breakout.NewStaticVideoProvider()
	breakoutApp := breakout.NewApp(breakoutRepo, outboxApp, video)
	breakoutService := breakout.NewService(breakoutApp)

	// Chat
	chatRepo := chat.NewRepository(pool)
	chatApp := chat.NewApp(chatRepo, outboxApp)
	chatService := chat.NewService(chatApp)

	// Roster
	participantRepo := participant.NewRepository(pool)
	participantApp := participant.NewApp(participantRepo)
	participantService := participant.NewService(participantApp)

	// Gateway
	connCfg := gateway.DefaultConnectionConfig()
	connCfg.PingInterval = secondsOrDefault(cfg.Gateway.PingIntervalSec, connCfg.PingInterval)
	connCfg.ReadTimeout = secondsOrDefault(cfg.Gateway.ReadTimeoutSec, connCfg.ReadTimeout)
	connCfg.WriteTimeout = secondsOrDefault(cfg.Gateway.WriteTimeoutSec, connCfg.WriteTimeout)
	if cfg.Gateway.MaxMessageBytes > 0 {
		connCfg.MaxMessageSize = int64(cfg.Gateway.MaxMessageBytes)
	}
	connManager := gateway.NewConnectionManager(connCfg)
	wsHandler := gateway.NewWebSocketHandler(connManager)

	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = natsURL
	eventConsumer, err := gateway.NewEventConsumer(connManager, consumerCfg)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	snapshotHandler := gateway.NewSnapshotHandler(handRaiseApp, breakoutApp, chatApp)

	// Orchestrator
	batchSize := cfg.Orchestrator.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	orch := orchestrator.NewOrchestrator(breakoutApp, batchSize)

	return &Services{
		HandRaise:        handRaiseService,
		Breakout:         breakoutService,
		Chat:             chatService,
		Participant:      participantService,
		HandRaiseApp:     handRaiseApp,
		BreakoutApp:      breakoutApp,
		ChatApp:          chatApp,
		OutboxListener:   listener,
		Publisher:        publisher,
		ConnManager:      connManager,
		WebsocketHandler: wsHandler,
		EventConsumer:    eventConsumer,
		SnapshotHandler:  snapshotHandler,
		Orchestrator:     orch,
	}, nil
}
