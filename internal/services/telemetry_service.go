package services

import (
	"context"
	"log/slog"

	"pv-monitor/internal/models"
	"pv-monitor/internal/observability"
)

// BatchSubmitter runs one telemetry batch through the prediction pipeline
type BatchSubmitter interface {
	SubmitTelemetry(ctx context.Context, batch *models.TelemetryBatch) (*models.PredictionResponse, error)
}

// TelemetryService consumes telemetry batches received over MQTT
type TelemetryService struct {
	submitter BatchSubmitter
	metrics   *observability.Metrics
	logger    *slog.Logger

	// Input channel from the MQTT subscriber
	BatchChan chan *models.TelemetryBatch
}

// TelemetryServiceConfig holds configuration for the telemetry service
type TelemetryServiceConfig struct {
	ChannelSize int
}

// DefaultTelemetryServiceConfig returns default configuration
func DefaultTelemetryServiceConfig() TelemetryServiceConfig {
	return TelemetryServiceConfig{
		ChannelSize: 50,
	}
}

// NewTelemetryService creates a new telemetry service
func NewTelemetryService(submitter BatchSubmitter, metrics *observability.Metrics, logger *slog.Logger, config TelemetryServiceConfig) *TelemetryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelemetryService{
		submitter: submitter,
		metrics:   metrics,
		logger:    logger.With("component", "telemetry_service"),
		BatchChan: make(chan *models.TelemetryBatch, config.ChannelSize),
	}
}

// Start processes batches until the context is cancelled or the channel is closed
func (s *TelemetryService) Start(ctx context.Context) {
	s.logger.Info("starting")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown complete")
			return
		case batch, ok := <-s.BatchChan:
			if !ok {
				s.logger.Info("batch channel closed")
				return
			}
			s.process(ctx, batch)
		}
	}
}

// process handles a single batch
func (s *TelemetryService) process(ctx context.Context, batch *models.TelemetryBatch) {
	resp, err := s.submitter.SubmitTelemetry(ctx, batch)
	if err != nil {
		if _, ok := AsValidationError(err); ok {
			s.metrics.MQTTBatch("rejected")
		} else {
			s.metrics.MQTTBatch("failed")
		}
		s.logger.Warn("telemetry batch not processed", "site_id", batch.SiteID, "error", err)
		return
	}

	s.metrics.MQTTBatch("processed")
	s.logger.Info("telemetry batch classified",
		"site_id", batch.SiteID,
		"fault_type", resp.TopPrediction.FaultType.String(),
		"probability", resp.TopPrediction.Probability,
		"severity", resp.Severity,
	)
}
