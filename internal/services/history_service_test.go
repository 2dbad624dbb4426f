package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pv-monitor/internal/models"
)

func TestHistoryList(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		store.history = append(store.history, &models.HistoryRecord{
			ID:        fmt.Sprintf("h-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			FaultType: models.GroundFault,
		})
	}
	svc := NewHistoryService(store)

	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
		wantLen    int
		wantFirst  string
	}{
		{"defaults", 0, 0, 50, 0, 50, "h-59"},
		{"negative falls back", -5, -3, 50, 0, 50, "h-59"},
		{"page two", 10, 10, 10, 10, 10, "h-49"},
		{"capped", 1000, 0, 500, 0, 60, "h-59"},
		{"past end", 10, 100, 10, 100, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.List(context.Background(), tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Limit != tt.wantLimit || page.Offset != tt.wantOffset || page.Total != 60 {
				t.Errorf("page meta = %d/%d/%d", page.Limit, page.Offset, page.Total)
			}
			if len(page.History) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(page.History), tt.wantLen)
			}
			if tt.wantLen > 0 && page.History[0].ID != tt.wantFirst {
				t.Errorf("first = %s, want %s", page.History[0].ID, tt.wantFirst)
			}
			if page.History == nil {
				t.Error("history must be an empty slice, not nil")
			}
		})
	}
}
