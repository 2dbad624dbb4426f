package ml

import (
	"pv-monitor/internal/aggregator"
	"pv-monitor/internal/models"
)

// LabelMode controls how a fired rule treats the current leading label
type LabelMode string

const (
	// Override always replaces the leading label
	Override LabelMode = "override"
	// IfUnset replaces the leading label only while it is still Normal
	IfUnset LabelMode = "if_unset"
)

// Rule is one heuristic in the ordered fault rule set
type Rule struct {
	Name      string           `json:"name"`
	Feature   string           `json:"feature"`
	Condition string           `json:"condition"`
	Delta     float64          `json:"delta"`
	Label     models.FaultType `json:"label"`
	Mode      LabelMode        `json:"mode"`

	// Applies reports whether the rule fires for the aggregated batch
	Applies func(stats aggregator.BatchStats) bool `json:"-"`
}

// Rule thresholds
const (
	VoltageVarianceLimit = 50.0
	VoltageMeanFloor     = 35.0
	CurrentMeanCeiling   = 7.0
	PowerDropFraction    = 0.2
)

// DefaultRules returns the fault heuristics in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "voltage_variance",
			Feature:   models.FeatureVoltage,
			Condition: "variance > 50",
			Delta:     0.3,
			Label:     models.LineLineFault,
			Mode:      Override,
			Applies: func(s aggregator.BatchStats) bool {
				v, ok := s.Get(models.FeatureVoltage)
				return ok && v.PositiveCount > 0 && v.Variance > VoltageVarianceLimit
			},
		},
		{
			Name:      "voltage_low",
			Feature:   models.FeatureVoltage,
			Condition: "mean < 35",
			Delta:     0.4,
			Label:     models.LineLineFault,
			Mode:      Override,
			Applies: func(s aggregator.BatchStats) bool {
				v, ok := s.Get(models.FeatureVoltage)
				return ok && v.PositiveCount > 0 && v.Mean < VoltageMeanFloor
			},
		},
		{
			Name:      "current_high",
			Feature:   models.FeatureCurrent,
			Condition: "mean > 7",
			Delta:     0.2,
			Label:     models.GroundFault,
			Mode:      IfUnset,
			Applies: func(s aggregator.BatchStats) bool {
				c, ok := s.Get(models.FeatureCurrent)
				return ok && c.PositiveCount > 0 && c.Mean > CurrentMeanCeiling
			},
		},
		{
			Name:      "power_drops",
			Feature:   models.FeaturePower,
			Condition: "drops > 20% of rows",
			Delta:     0.25,
			Label:     models.OpenCircuit,
			Mode:      IfUnset,
			Applies: func(s aggregator.BatchStats) bool {
				p, ok := s.Get(models.FeaturePower)
				return ok && s.RowCount > 1 && float64(p.Drops) > float64(s.RowCount)*PowerDropFraction
			},
		},
	}
}
