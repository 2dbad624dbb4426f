package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pv-monitor/internal/models"
	"pv-monitor/internal/observability"
)

// StatusStore reads and overwrites the singleton live status
type StatusStore interface {
	GetStatus(ctx context.Context) (*models.SystemStatus, error)
	ReadStatusID(ctx context.Context) (string, error)
	UpdateStatus(ctx context.Context, id string, status *models.SystemStatus) error
}

// StatusUpdate is an explicit status overwrite; nil or empty fields take their defaults (Normal, Normal, 0)
type StatusUpdate struct {
	Status       *string  `json:"status"`
	CurrentFault *string  `json:"currentFault"`
	Confidence   *float64 `json:"confidence"`
}

type StatusService struct {
	store   StatusStore
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewStatusService(store StatusStore, metrics *observability.Metrics, logger *slog.Logger) *StatusService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusService{
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "status_service"),
		now:     time.Now,
	}
}

func (s *StatusService) Get(ctx context.Context) (*models.SystemStatus, error) {
	status, err := s.store.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read system status: %w", err)
	}
	return status, nil
}

// Set validates the update and overwrites the live status
func (s *StatusService) Set(ctx context.Context, update StatusUpdate) (*models.SystemStatus, error) {
	status := &models.SystemStatus{
		Status:       models.StatusNormal,
		CurrentFault: models.Normal,
		LastUpdated:  s.now().UTC(),
	}

	if present(update.Status) {
		level, err := models.ParseStatusLevel(*update.Status)
		if err != nil {
			return nil, invalid("status", "%v; allowed: Normal, Warning, Fault", err)
		}
		status.Status = level
	}
	if present(update.CurrentFault) {
		fault, err := models.ParseFaultType(*update.CurrentFault)
		if err != nil {
			return nil, invalid("currentFault", "%v", err)
		}
		status.CurrentFault = fault
	}
	if update.Confidence != nil {
		c := *update.Confidence
		if c < 0 || c > 1 {
			return nil, invalid("confidence", "must be between 0 and 1, got %v", c)
		}
		status.Confidence = c
	}

	id, err := s.store.ReadStatusID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read system status id: %w", err)
	}
	status.ID = id

	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		s.metrics.PersistenceFailed("status_update")
		return nil, fmt.Errorf("failed to update system status: %w", err)
	}

	s.metrics.StatusChanged(string(status.Status))
	s.logger.Info("system status set", "status", status.Status, "current_fault", status.CurrentFault.String(), "confidence", status.Confidence)
	return status, nil
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
