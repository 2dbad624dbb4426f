package aggregator

import (
	"errors"
	"fmt"

	"pv-monitor/internal/models"
)

var (
	// ErrNoRows is returned when the batch is empty
	ErrNoRows = errors.New("telemetry batch has no rows")
	// ErrNoFeatures is returned when no features were requested
	ErrNoFeatures = errors.New("no features requested")
)

// DropRatio is the fraction of the previous power reading below which a sample counts as a drop
const DropRatio = 0.5

// FeatureStats holds summary statistics for one feature over a batch
type FeatureStats struct {
	Feature       string  `json:"feature"`
	PositiveCount int     `json:"positive_count"` // Rows with a strictly positive value
	Mean          float64 `json:"mean"`           // Mean of positive values
	Variance      float64 `json:"variance"`       // Population variance of positive values
	Drops         int     `json:"drops"`          // Adjacent-row drops (Power only)
}

// BatchStats is the aggregated view of a telemetry batch
type BatchStats struct {
	RowCount int
	Features map[string]FeatureStats
}

// Get returns the statistics for a feature and whether it was aggregated
func (b BatchStats) Get(feature string) (FeatureStats, bool) {
	s, ok := b.Features[feature]
	return s, ok
}

// Aggregate reduces the rows into per-feature statistics for the requested features.
// Feature names are matched case-insensitively; an unknown name is an error.
func Aggregate(rows []models.TelemetryRow, features []string) (BatchStats, error) {
	if len(rows) == 0 {
		return BatchStats{}, ErrNoRows
	}
	if len(features) == 0 {
		return BatchStats{}, ErrNoFeatures
	}

	stats := BatchStats{
		RowCount: len(rows),
		Features: make(map[string]FeatureStats, len(features)),
	}

	for _, name := range features {
		feature, ok := models.CanonicalFeature(name)
		if !ok {
			return BatchStats{}, fmt.Errorf("unknown feature %q", name)
		}
		if _, done := stats.Features[feature]; done {
			continue
		}

		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i] = row.Value(feature)
		}

		fs := summarize(feature, values)
		if feature == models.FeaturePower {
			fs.Drops = countDrops(values)
		}
		stats.Features[feature] = fs
	}

	return stats, nil
}

// summarize computes count, mean and population variance over the strictly positive values
func summarize(feature string, values []float64) FeatureStats {
	fs := FeatureStats{Feature: feature}

	var sum float64
	for _, v := range values {
		if v > 0 {
			fs.PositiveCount++
			sum += v
		}
	}
	if fs.PositiveCount == 0 {
		return fs
	}
	fs.Mean = sum / float64(fs.PositiveCount)

	var sumSquares float64
	for _, v := range values {
		if v > 0 {
			d := v - fs.Mean
			sumSquares += d * d
		}
	}
	fs.Variance = sumSquares / float64(fs.PositiveCount)

	return fs
}

// countDrops counts rows whose value is less than half of the immediately preceding row.
// Zero-valued rows take part in the comparison.
func countDrops(values []float64) int {
	drops := 0
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1]*DropRatio {
			drops++
		}
	}
	return drops
}
