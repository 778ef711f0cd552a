package main

import (
	"keyring/internal/sessions/events"
	sessionshandler "keyring/internal/sessions/handler"
	sessionsrepo "keyring/internal/sessions/repository"
	sessionsservice "keyring/internal/sessions/service"
	sessionsvalidator "keyring/internal/sessions/validator"
	toolshandler "keyring/internal/tools/handler"
	toolsrepo "keyring/internal/tools/repository"
	toolsservice "keyring/internal/tools/service"
	toolsvalidator "keyring/internal/tools/validator"
	"keyring/pkg/app"
	"keyring/pkg/clock"
	"keyring/pkg/config"
	"keyring/pkg/contracts"
	"keyring/pkg/kafka"
	kafkaconfig "keyring/pkg/kafka/config"
	kafkamiddleware "keyring/pkg/kafka/middleware"
	"keyring/pkg/sealer"
)

const ServiceName = "keyring"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Keyring service")

	producer, publisher := initEvents(cfg)
	if producer != nil {
		defer producer.Close()
	}

	toolService, sessionService := initServices(cfg, publisher)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		[]contracts.Handler{sessionshandler.NewSessionHandler(sessionService, cfg.Log)},
		[]contracts.Handler{toolshandler.NewToolHandler(toolService, cfg.Log)},
	)
	serverApp.Run()
}

func initServices(cfg *config.Config, publisher events.Publisher) (toolsservice.ToolService, sessionsservice.SessionService) {
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

	sessionService := sessionsservice.NewSessionService(
		sessionsrepo.NewMongoSessionRepository(cfg),
		sessionsrepo.NewCheckoutLockRepository(cfg),
		toolService,
		sessionsvalidator.NewSessionValidator(cfg.Log),
		publisher,
		clock.NewSystem(),
		cfg,
	)

	cfg.Log.Info("Services initialized", "database", cfg.MongoDatabaseName)
	return toolService, sessionService
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

	cfg.Log.Info("Session event publishing enabled",
		"topic", kafkaCfg.SessionEventsTopic,
		"dlq_topic", kafkaCfg.SessionEventsDLQ,
	)
	return producer, events.NewKafkaPublisher(producer, cfg.Log)
}
