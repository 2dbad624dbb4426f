package services

import (
	"context"
	"fmt"

	"pv-monitor/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// HistoryReader lists fault history newest first together with the total count
type HistoryReader interface {
	ListHistory(ctx context.Context, limit, offset int) ([]models.HistoryRecord, int, error)
}

type HistoryService struct {
	reader HistoryReader
}

func NewHistoryService(reader HistoryReader) *HistoryService {
	return &HistoryService{reader: reader}
}

// List returns one page of fault history. A non-positive limit or negative offset falls back to the default.
func (s *HistoryService) List(ctx context.Context, limit, offset int) (*models.HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.reader.ListHistory(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list fault history: %w", err)
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	return &models.HistoryPage{History: records, Total: total, Limit: limit, Offset: offset}, nil
}
