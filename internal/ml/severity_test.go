package ml

import (
	"testing"

	"pv-monitor/internal/models"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		probability float64
		want        models.Severity
	}{
		{1.0, models.SeverityCritical},
		{0.95, models.SeverityCritical},
		{0.9, models.SeverityCritical},
		{0.899999, models.SeverityHigh},
		{0.75, models.SeverityHigh},
		{0.749999, models.SeverityMedium},
		{0.5, models.SeverityMedium},
		{0.499999, models.SeverityLow},
		{0, models.SeverityLow},
	}

	for _, tt := range tests {
		if got := ClassifySeverity(tt.probability); got != tt.want {
			t.Errorf("ClassifySeverity(%v) = %s, want %s", tt.probability, got, tt.want)
		}
	}
}
