package ml

import "pv-monitor/internal/models"

// Severity tier lower bounds, inclusive
const (
	CriticalThreshold = 0.9
	HighThreshold     = 0.75
	MediumThreshold   = 0.5
)

// ClassifySeverity maps a leading probability to a severity tier
func ClassifySeverity(probability float64) models.Severity {
	switch {
	case probability >= CriticalThreshold:
		return models.SeverityCritical
	case probability >= HighThreshold:
		return models.SeverityHigh
	case probability >= MediumThreshold:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
