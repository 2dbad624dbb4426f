package services

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"pv-monitor/internal/logging"
	"pv-monitor/internal/ml"
	"pv-monitor/internal/models"
)

// fakeStore records every write for test assertions.
type fakeStore struct {
	mu          sync.Mutex
	predictions []*models.PredictionRecord
	history     []*models.HistoryRecord
	status      models.SystemStatus
	updates     int

	predictionErr error
	historyErr    error
	readErr       error
	updateErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{status: models.SystemStatus{ID: "status-1", Status: models.StatusNormal}}
}

func (f *fakeStore) InsertPrediction(_ context.Context, r *models.PredictionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.predictionErr != nil {
		return f.predictionErr
	}
	f.predictions = append(f.predictions, r)
	return nil
}

func (f *fakeStore) InsertHistory(_ context.Context, r *models.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return f.historyErr
	}
	f.history = append(f.history, r)
	return nil
}

func (f *fakeStore) ReadStatusID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.status.ID, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, s *models.SystemStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.status = *s
	f.status.ID = id
	f.updates++
	return nil
}

func (f *fakeStore) GetStatus(context.Context) (*models.SystemStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	s := f.status
	return &s, nil
}

func (f *fakeStore) ListHistory(_ context.Context, limit, offset int) ([]models.HistoryRecord, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HistoryRecord
	for i := len(f.history) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.history[i])
	}
	return out, len(f.history), nil
}

// cancellingStore honours ctx like a network-backed store and cancels the caller
// right after the history write succeeds.
type cancellingStore struct {
	*fakeStore
	cancel context.CancelFunc
}

func (c *cancellingStore) InsertPrediction(ctx context.Context, r *models.PredictionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeStore.InsertPrediction(ctx, r)
}

func (c *cancellingStore) InsertHistory(ctx context.Context, r *models.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.fakeStore.InsertHistory(ctx, r)
	c.cancel()
	return err
}

func (c *cancellingStore) ReadStatusID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.fakeStore.ReadStatusID(ctx)
}

func (c *cancellingStore) UpdateStatus(ctx context.Context, id string, s *models.SystemStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.fakeStore.UpdateStatus(ctx, id, s)
}

// fakeNotifier records delivered alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []*models.FaultAlert
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, a *models.FaultAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

type notifierFunc func(ctx context.Context, a *models.FaultAlert) error

func (f notifierFunc) Notify(ctx context.Context, a *models.FaultAlert) error { return f(ctx, a) }

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator(1000)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func newTestService(t *testing.T, store Store, config PredictionServiceConfig) *PredictionService {
	t.Helper()
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	predictor := ml.NewPredictor(rand.New(rand.NewSource(1)))
	return NewPredictionService(store, predictor, newTestValidator(t), config)
}

// payload builds a request body with n copies of row
func payload(t *testing.T, n int, row map[string]any, extra map[string]any) []byte {
	t.Helper()
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = row
	}
	body := map[string]any{"data": data}
	for k, v := range extra {
		body[k] = v
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return b
}
