package ml

import (
	"math"

	"pv-monitor/internal/aggregator"
	"pv-monitor/internal/models"
)

const (
	// BaseProbability is the leading probability when no rule fires
	BaseProbability = 0.5
	// MaxProbability caps the leading probability
	MaxProbability = 0.95
)

// Score is the outcome of evaluating the rule set against a batch
type Score struct {
	Label models.FaultType
	Base  float64  // Leading probability, in [0.5, 0.95]
	Raw   float64  // Sum of fired rule deltas
	Fired []string // Names of the rules that fired, in order
}

// Scorer evaluates an ordered rule list
type Scorer struct {
	rules []Rule
}

// NewScorer creates a scorer over the given rules; nil selects DefaultRules
func NewScorer(rules []Rule) *Scorer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Scorer{rules: rules}
}

// Rules returns the rules in evaluation order
func (s *Scorer) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Score runs every rule in order. All fired deltas accumulate, and the label follows each rule's mode.
func (s *Scorer) Score(stats aggregator.BatchStats) Score {
	result := Score{Label: models.Normal}

	for _, rule := range s.rules {
		if rule.Applies == nil || !rule.Applies(stats) {
			continue
		}
		result.Raw += rule.Delta
		result.Fired = append(result.Fired, rule.Name)

		switch rule.Mode {
		case Override:
			result.Label = rule.Label
		case IfUnset:
			if result.Label == models.Normal {
				result.Label = rule.Label
			}
		}
	}

	result.Base = math.Min(MaxProbability, BaseProbability+result.Raw)
	return result
}
