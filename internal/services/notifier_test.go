package services

import (
	"context"
	"errors"
	"testing"

	"pv-monitor/internal/models"
)

func TestMultiNotifierDeliversToAll(t *testing.T) {
	failing := &fakeNotifier{err: errors.New("broker down")}
	healthy := &fakeNotifier{}
	m := NewMultiNotifier(failing, nil, healthy)

	if m.Len() != 2 {
		t.Fatalf("nil sinks should be skipped, got %d", m.Len())
	}

	err := m.Notify(context.Background(), &models.FaultAlert{FaultType: models.ArcFault})
	if !errors.Is(err, failing.err) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(healthy.alerts) != 1 || len(failing.alerts) != 1 {
		t.Errorf("every sink should be called: %d/%d", len(failing.alerts), len(healthy.alerts))
	}
}

func TestMultiNotifierEmpty(t *testing.T) {
	if err := NewMultiNotifier().Notify(context.Background(), &models.FaultAlert{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
