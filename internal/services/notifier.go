package services

import (
	"context"
	"errors"

	"pv-monitor/internal/models"
)

// MultiNotifier fans an alert out to several sinks.
// A failing sink does not prevent delivery to the remaining ones.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier creates a MultiNotifier, skipping nil sinks
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of configured sinks
func (m *MultiNotifier) Len() int {
	return len(m.sinks)
}

func (m *MultiNotifier) Notify(ctx context.Context, alert *models.FaultAlert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
