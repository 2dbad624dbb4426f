package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pv-monitor/internal/api"
	"pv-monitor/internal/database"
	"pv-monitor/internal/events"
	"pv-monitor/internal/logging"
	"pv-monitor/internal/ml"
	"pv-monitor/internal/mqtt"
	"pv-monitor/internal/observability"
	"pv-monitor/internal/services"
	"pv-monitor/pkg/config"
)

// store is everything the services and the API need from a backend
type store interface {
	services.Store
	services.HistoryReader
	services.StatusStore
	api.Pinger
	Close() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	logger.Info("starting PV fault monitor", "version", ml.ModelVersion, "store", cfg.StoreBackend)

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// === Observability ===
	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()

	// === Storage ===
	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// === Alert sinks ===
	var sinks []services.Notifier

	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled {
		logger.Info("connecting to MQTT broker", "broker", cfg.MQTTBroker)
		mqttClient, err = mqtt.NewClient(mqtt.ClientConfig{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			Username:      cfg.MQTTUsername,
			Password:      cfg.MQTTPassword,
			PresenceTopic: cfg.MQTTPresenceTopic,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT client: %w", err)
		}
		defer mqttClient.Close()

		publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
			FaultTopic: cfg.MQTTTopicFault,
		}, logger)
		go publisher.Start(ctx)
		sinks = append(sinks, publisher)
	}

	if cfg.KafkaEnabled() {
		stream, err := events.NewFaultStream(events.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaFaultTopic,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Kafka fault stream: %w", err)
		}
		defer stream.Close()
		go stream.Start(ctx)
		sinks = append(sinks, stream)
		logger.Info("kafka fault stream enabled", "topic", cfg.KafkaFaultTopic, "brokers", cfg.KafkaBrokers)
	}

	var notifier services.Notifier
	if len(sinks) > 0 {
		notifier = services.NewMultiNotifier(sinks...)
	}

	// === Services ===
	validator, err := services.NewValidator(cfg.MaxBatchRows)
	if err != nil {
		return err
	}
	predictor := ml.NewPredictor(nil)

	predictionService := services.NewPredictionService(db, predictor, validator, services.PredictionServiceConfig{
		StrictAudit: cfg.StrictAudit,
		Notifier:    notifier,
		Metrics:     metrics,
		Logger:      logger,
	})
	historyService := services.NewHistoryService(db)
	statusService := services.NewStatusService(db, metrics, logger)

	// === MQTT ingestion ===
	if mqttClient != nil {
		telemetryService := services.NewTelemetryService(predictionService, metrics, logger, services.DefaultTelemetryServiceConfig())

		subscriber := mqtt.NewSubscriber(
			mqttClient.GetNativeClient(),
			mqtt.SubscriberConfig{TelemetryTopic: cfg.MQTTTopicTelemetry},
			telemetryService.BatchChan,
			metrics,
			logger,
		)
		if err := subscriber.SubscribeAll(); err != nil {
			return fmt.Errorf("failed to subscribe to MQTT topics: %w", err)
		}
		mqttClient.OnConnect(func() {
			if err := subscriber.SubscribeAll(); err != nil {
				logger.Error("failed to restore MQTT subscriptions", "error", err)
			}
		})

		go telemetryService.Start(ctx)
	}

	// === HTTP API ===
	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewHandler(api.Deps{
			Predictions:  predictionService,
			History:      historyService,
			Status:       statusService,
			Model:        predictor,
			Store:        db,
			Metrics:      metrics,
			Logger:       logger,
			MaxBodyBytes: cfg.MaxBodyBytes,
			AccessLog:    os.Stdout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	logger.Info("PV fault monitor is running",
		"mqtt_enabled", cfg.MQTTEnabled,
		"telemetry_topic", cfg.MQTTTopicTelemetry,
		"fault_topic", cfg.MQTTTopicFault,
		"kafka_enabled", cfg.KafkaEnabled(),
		"max_batch_rows", cfg.MaxBatchRows,
		"strict_audit", cfg.StrictAudit,
	)

	// === Wait for interrupt signal ===
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	// === Graceful shutdown ===
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore connects the configured backend
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory store; predictions are lost on restart")
		return database.NewMemoryStore(), nil
	}

	db, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	return db, nil
}
