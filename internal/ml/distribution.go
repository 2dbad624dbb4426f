package ml

import (
	"math"
	"math/rand"
	"sort"

	"pv-monitor/internal/models"
)

// MinProbability floors every non-leading class before normalization
const MinProbability = 0.001

// MaxNormalizedProbability is the largest leading probability Distribute can return.
// It is reached when base is MaxProbability and every other class draws the lowest
// multiplier: 0.95 / (0.95 + 0.05/2), rounded.
const MaxNormalizedProbability = 0.9744

// RandomSource supplies values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// globalSource uses the package-level math/rand functions, which are safe for concurrent use
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Synthesizer expands a scored label into a full probability distribution
type Synthesizer struct {
	rng RandomSource
}

// NewSynthesizer creates a synthesizer. A nil source selects the shared math/rand source.
// A non-nil source must be safe for the caller's concurrency.
func NewSynthesizer(rng RandomSource) *Synthesizer {
	if rng == nil {
		rng = globalSource{}
	}
	return &Synthesizer{rng: rng}
}

// Distribute assigns base to label and spreads the remainder over the other classes with
// a random multiplier in [0.5, 1.0). The result is normalized, rounded to 4 decimals and
// sorted by descending probability, ties in canonical order.
func (s *Synthesizer) Distribute(label models.FaultType, base float64) []models.ScoredPrediction {
	types := models.AllFaultTypes()
	remaining := 1 - base
	share := remaining / float64(len(types)-1)

	predictions := make([]models.ScoredPrediction, 0, len(types))
	var total float64
	for _, f := range types {
		p := base
		if f != label {
			p = math.Max(MinProbability, share*(0.5+s.rng.Float64()*0.5))
		}
		predictions = append(predictions, models.ScoredPrediction{FaultType: f, Probability: p})
		total += p
	}

	for i := range predictions {
		predictions[i].Probability = round4(predictions[i].Probability / total)
	}

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].Probability > predictions[j].Probability
	})

	return predictions
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
