package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keyring/internal/sessions/events"
	sessionsrepo "keyring/internal/sessions/repository"
	sessionsservice "keyring/internal/sessions/service"
	sessionsvalidator "keyring/internal/sessions/validator"
	toolsrepo "keyring/internal/tools/repository"
	toolsservice "keyring/internal/tools/service"
	toolsvalidator "keyring/internal/tools/validator"
	"keyring/pkg/clock"
	"keyring/pkg/config"
	"keyring/pkg/kafka"
	kafkaconfig "keyring/pkg/kafka/config"
	kafkamiddleware "keyring/pkg/kafka/middleware"
	"keyring/pkg/sealer"
)

const ServiceName = "sweeper"

// Sessions to expire per sweep pass. Leftovers are picked up next tick.
const sweepBatchLimit = 500

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting session expiry sweeper", "interval", cfg.SweepInterval)

	producer, publisher := initEvents(cfg)
	if producer != nil {
		defer producer.Close()
	}

	sessionService := initService(cfg, publisher)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	sweep(cfg, sessionService)
	for {
		select {
		case <-ticker.C:
			sweep(cfg, sessionService)
		case sig := <-shutdown:
			cfg.Log.Info("Shutdown signal received", "signal", sig)
			return
		}
	}
}

func sweep(cfg *config.Config, sessionService sessionsservice.SessionService) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	count, err := sessionService.ExpireOverdue(ctx, sweepBatchLimit)
	if err != nil {
		cfg.Log.Error("Expiry sweep failed", "error", err)
		return
	}
	if count > 0 {
		cfg.Log.Info("Expiry sweep completed", "expired", count)
	}
}

func initService(cfg *config.Config, publisher events.Publisher) sessionsservice.SessionService {
	credSealer, err := sealer.New(cfg.CredentialSealKey)
	if err != nil {
		cfg.Log.Fatal("Invalid credential seal key", "error", err)
	}

	toolService := toolsservice.NewToolService(
		toolsrepo.NewMongoToolRepository(cfg),
		toolsvalidator.NewToolValidator(cfg.Log),
		credSealer,
		cfg,
	)

	return sessionsservice.NewSessionService(
		sessionsrepo.NewMongoSessionRepository(cfg),
		sessionsrepo.NewCheckoutLockRepository(cfg),
		toolService,
		sessionsvalidator.NewSessionValidator(cfg.Log),
		publisher,
		clock.NewSystem(),
		cfg,
	)
}

func initEvents(cfg *config.Config) (*kafka.Producer, events.Publisher) {
	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	if !kafkaCfg.Enabled() {
		cfg.Log.Info("Kafka brokers not configured, session events disabled")
		return nil, events.NewNoopPublisher()
	}

	producer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.SessionEventsTopic, kafkaCfg.SessionEventsDLQ)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafkamiddleware.MetricsProducerMiddleware())

	return producer, events.NewKafkaPublisher(producer, cfg.Log)
}
