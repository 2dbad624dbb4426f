package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pv-monitor/internal/aggregator"
	"pv-monitor/internal/ml"
	"pv-monitor/internal/models"
	"pv-monitor/internal/observability"
)

// TimestampLayout is the ISO-8601 layout used in prediction responses
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultPersistTimeout bounds the whole write protocol of one prediction
const DefaultPersistTimeout = 10 * time.Second

// Store is the external persistence the pipeline writes to
type Store interface {
	InsertPrediction(ctx context.Context, record *models.PredictionRecord) error
	InsertHistory(ctx context.Context, record *models.HistoryRecord) error
	ReadStatusID(ctx context.Context) (string, error)
	UpdateStatus(ctx context.Context, id string, status *models.SystemStatus) error
}

// Notifier delivers fault alerts to downstream consumers
type Notifier interface {
	Notify(ctx context.Context, alert *models.FaultAlert) error
}

// PredictionServiceConfig holds optional collaborators and policy switches
type PredictionServiceConfig struct {
	StrictAudit    bool          // fail the request when the prediction log write fails
	PersistTimeout time.Duration // zero means DefaultPersistTimeout
	Notifier       Notifier      // nil disables alerts
	Metrics        *observability.Metrics
	Logger         *slog.Logger
}

// PredictionService runs the classification pipeline and records its outcome
type PredictionService struct {
	store     Store
	predictor *ml.Predictor
	validator *Validator
	notifier  Notifier
	metrics   *observability.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	strictAudit    bool
	persistTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// NewPredictionService creates a prediction service
func NewPredictionService(store Store, predictor *ml.Predictor, validator *Validator, config PredictionServiceConfig) *PredictionService {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = DefaultPersistTimeout
	}
	return &PredictionService{
		store:       store,
		predictor:   predictor,
		validator:   validator,
		notifier:    config.Notifier,
		metrics:     config.Metrics,
		logger:      logger.With("component", "prediction_service"),
		tracer:      otel.Tracer("pv-monitor/services"),
		strictAudit:    config.StrictAudit,
		persistTimeout: config.PersistTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Submit validates a raw JSON request and runs it through the pipeline
func (s *PredictionService) Submit(ctx context.Context, payload []byte, source string) (*models.PredictionResponse, error) {
	return s.submit(ctx, payload, source, "")
}

// SubmitTelemetry runs a batch received from a site gateway. The dataset name defaults to the site id.
func (s *PredictionService) SubmitTelemetry(ctx context.Context, batch *models.TelemetryBatch) (*models.PredictionResponse, error) {
	return s.submit(ctx, batch.Payload, "mqtt:"+batch.SiteID, batch.SiteID)
}

func (s *PredictionService) submit(ctx context.Context, payload []byte, source, dataset string) (*models.PredictionResponse, error) {
	req, err := s.validator.Parse(payload, source)
	if err != nil {
		s.validationFailed(err)
		return nil, err
	}
	if strings.TrimSpace(req.DatasetName) == "" {
		req.DatasetName = dataset
	}
	return s.Predict(ctx, req)
}

// Predict runs an already decoded request through the pipeline
func (s *PredictionService) Predict(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResponse, error) {
	normalized, err := s.validator.Check(req)
	if err != nil {
		s.validationFailed(err)
		return nil, err
	}
	return s.run(ctx, normalized)
}

func (s *PredictionService) validationFailed(err error) {
	field := "body"
	if ve, ok := AsValidationError(err); ok {
		field = ve.Field
	}
	s.metrics.ValidationFailed(field)
	s.logger.Debug("prediction request rejected", "error", err)
}

func (s *PredictionService) run(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResponse, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "prediction.run", trace.WithAttributes(
		attribute.Int("pv.rows", len(req.Rows)),
		attribute.StringSlice("pv.features", req.Features),
		attribute.String("pv.source", req.Source),
	))
	defer span.End()

	_, aggSpan := s.tracer.Start(ctx, "prediction.aggregate")
	stats, err := aggregator.Aggregate(req.Rows, req.Features)
	aggSpan.End()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, invalid("features", "%v", err)
	}

	_, scoreSpan := s.tracer.Start(ctx, "prediction.score")
	result := s.predictor.Predict(stats)
	scoreSpan.SetAttributes(
		attribute.String("pv.label", result.Score.Label.String()),
		attribute.Float64("pv.base", result.Score.Base),
		attribute.StringSlice("pv.rules_fired", result.Score.Fired),
	)
	scoreSpan.End()

	now := s.now().UTC()
	resp := &models.PredictionResponse{
		Predictions:   result.Predictions,
		TopPrediction: result.Top,
		Severity:      result.Severity,
		Timestamp:     now.Format(TimestampLayout),
	}

	if err := s.persist(ctx, req, result, now); err != nil {
		if s.strictAudit {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		resp.Degraded = true
	}

	s.metrics.ObservePrediction(result.Top.FaultType.String(), string(result.Severity), s.now().Sub(start))
	s.logger.Info("prediction completed",
		"fault_type", result.Top.FaultType.String(),
		"probability", result.Top.Probability,
		"severity", result.Severity,
		"rules_fired", result.Score.Fired,
		"rows", len(req.Rows),
		"source", req.Source,
		"degraded", resp.Degraded,
	)
	return resp, nil
}

// persist writes the prediction log and, for a qualifying result, the fault history, live status and alert.
// Only the prediction log failure is returned; the later steps fail independently and are logged.
// The writes run to completion even if the caller goes away, bounded by the persist timeout.
func (s *PredictionService) persist(ctx context.Context, req *models.PredictionRequest, result ml.Result, now time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "prediction.persist")
	defer span.End()

	record := &models.PredictionRecord{
		ID:             s.newID(),
		PredictedFault: result.Top.FaultType,
		Probabilities:  result.Predictions,
		InputFeatures:  models.InputFeatures{Features: req.Features, RowCount: len(req.Rows)},
		DatasetName:    req.DatasetName,
		Source:         req.Source,
		CreatedAt:      now,
	}

	var logErr error
	if err := s.store.InsertPrediction(ctx, record); err != nil {
		s.metrics.PersistenceFailed("prediction")
		s.logger.Error("failed to insert prediction record", "id", record.ID, "error", err)
		span.RecordError(err)
		logErr = err
		if s.strictAudit {
			return logErr
		}
	}

	if !result.Qualifies() {
		return logErr
	}
	span.SetAttributes(attribute.Bool("pv.qualifying", true))

	history := &models.HistoryRecord{
		ID:           s.newID(),
		Timestamp:    now,
		FaultType:    result.Top.FaultType,
		Severity:     result.Severity,
		Confidence:   result.Top.Probability,
		DatasetName:  req.DatasetName,
		FeaturesUsed: req.Features,
	}
	if err := s.store.InsertHistory(ctx, history); err != nil {
		s.metrics.PersistenceFailed("history")
		s.logger.Error("failed to insert fault history", "id", history.ID, "error", err)
		span.RecordError(err)
	}

	s.markFault(ctx, result.Top, now)

	if s.notifier != nil {
		alert := &models.FaultAlert{
			PredictionID: record.ID,
			Source:       req.Source,
			FaultType:    result.Top.FaultType,
			Severity:     result.Severity,
			Confidence:   result.Top.Probability,
			DatasetName:  req.DatasetName,
			Timestamp:    now,
		}
		err := s.notifier.Notify(ctx, alert)
		s.metrics.AlertDelivered(err)
		if err != nil {
			s.logger.Warn("fault alert delivery failed", "prediction_id", record.ID, "error", err)
		}
	}

	return logErr
}

// markFault overwrites the live status with the leading fault
func (s *PredictionService) markFault(ctx context.Context, top models.ScoredPrediction, now time.Time) {
	id, err := s.store.ReadStatusID(ctx)
	if err != nil {
		s.metrics.PersistenceFailed("status_read")
		s.logger.Error("failed to read system status id", "error", err)
		return
	}

	status := &models.SystemStatus{
		ID:           id,
		Status:       models.StatusFault,
		CurrentFault: top.FaultType,
		Confidence:   top.Probability,
		LastUpdated:  now,
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		s.metrics.PersistenceFailed("status_update")
		s.logger.Error("failed to update system status", "id", id, "error", err)
		return
	}
	s.metrics.StatusChanged(string(models.StatusFault))
}
