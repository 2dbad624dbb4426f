package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pv-monitor/internal/models"
)

// MemoryStore keeps predictions, history and the live status in process memory.
// It is used when no ClickHouse server is configured and in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	predictions []models.PredictionRecord
	history     []models.HistoryRecord
	status      *models.SystemStatus
}

// NewMemoryStore creates a store with a bootstrapped Normal status row
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{status: InitialStatus(uuid.NewString(), time.Now().UTC())}
}

func (m *MemoryStore) InsertPrediction(_ context.Context, record *models.PredictionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions = append(m.predictions, *record)
	return nil
}

func (m *MemoryStore) InsertHistory(_ context.Context, record *models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *record)
	return nil
}

// ListHistory returns history newest first; records with equal timestamps keep reverse insertion order
func (m *MemoryStore) ListHistory(_ context.Context, limit, offset int) ([]models.HistoryRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := make([]models.HistoryRecord, len(m.history))
	for i, rec := range m.history {
		sorted[len(m.history)-1-i] = rec
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	total := len(sorted)
	if offset >= total {
		return []models.HistoryRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return sorted[offset:end], total, nil
}

func (m *MemoryStore) ReadStatusID(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return "", ErrStatusNotFound
	}
	return m.status.ID, nil
}

func (m *MemoryStore) GetStatus(context.Context) (*models.SystemStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return nil, ErrStatusNotFound
	}
	s := *m.status
	return &s, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, status *models.SystemStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *status
	s.ID = id
	m.status = &s
	return nil
}

// Predictions returns a copy of the prediction log in insertion order
func (m *MemoryStore) Predictions() []models.PredictionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PredictionRecord(nil), m.predictions...)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
