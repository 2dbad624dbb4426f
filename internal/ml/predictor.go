package ml

import (
	"pv-monitor/internal/aggregator"
	"pv-monitor/internal/models"
)

// HistoryThreshold is the leading probability a non-Normal prediction must exceed to be recorded as a fault
const HistoryThreshold = 0.5

// ModelName identifies the heuristic stand-in in persisted metadata and the model description
const ModelName = "pv-fault-heuristic"

// ModelVersion is bumped whenever the rule set changes
const ModelVersion = "v1.0.0"

// Result holds everything the pipeline derives from one batch
type Result struct {
	Predictions []models.ScoredPrediction
	Top         models.ScoredPrediction
	Severity    models.Severity
	Score       Score
}

// Qualifies reports whether the result should be recorded in fault history and live status
func (r Result) Qualifies() bool {
	return r.Top.FaultType != models.Normal && r.Top.Probability > HistoryThreshold
}

// Predictor chains the scorer, the distribution synthesizer and the severity classifier
type Predictor struct {
	scorer      *Scorer
	synthesizer *Synthesizer
}

// NewPredictor creates a predictor with the default rule set and the given random source
func NewPredictor(rng RandomSource) *Predictor {
	return &Predictor{
		scorer:      NewScorer(nil),
		synthesizer: NewSynthesizer(rng),
	}
}

// Predict scores aggregated statistics and expands them into a ranked distribution
func (p *Predictor) Predict(stats aggregator.BatchStats) Result {
	score := p.scorer.Score(stats)
	predictions := p.synthesizer.Distribute(score.Label, score.Base)
	top := predictions[0]

	return Result{
		Predictions: predictions,
		Top:         top,
		Severity:    ClassifySeverity(top.Probability),
		Score:       score,
	}
}

// ModelInfo describes the heuristic classifier
type ModelInfo struct {
	Name               string             `json:"name"`
	Version            string             `json:"version"`
	FaultClasses       []models.FaultType `json:"fault_classes"`
	Features           []string           `json:"features"`
	Rules              []Rule             `json:"rules"`
	BaseProbability    float64            `json:"base_probability"`
	MaxProbability     float64            `json:"max_probability"`
	HistoryThreshold   float64            `json:"history_threshold"`
	SeverityThresholds map[string]float64 `json:"severity_thresholds"`
}

// Describe returns the model description served by the API
func (p *Predictor) Describe() ModelInfo {
	return ModelInfo{
		Name:             ModelName,
		Version:          ModelVersion,
		FaultClasses:     models.AllFaultTypes(),
		Features:         models.AllowedFeatures,
		Rules:            p.scorer.Rules(),
		BaseProbability:  BaseProbability,
		MaxProbability:   MaxProbability,
		HistoryThreshold: HistoryThreshold,
		SeverityThresholds: map[string]float64{
			string(models.SeverityCritical): CriticalThreshold,
			string(models.SeverityHigh):     HighThreshold,
			string(models.SeverityMedium):   MediumThreshold,
		},
	}
}
