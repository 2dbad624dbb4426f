package ml

import (
	"reflect"
	"testing"

	"pv-monitor/internal/aggregator"
	"pv-monitor/internal/models"
)

func aggregate(t *testing.T, rows []models.TelemetryRow, features ...string) aggregator.BatchStats {
	t.Helper()
	stats, err := aggregator.Aggregate(rows, features)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	return stats
}

func constantRows(n int, row models.TelemetryRow) []models.TelemetryRow {
	rows := make([]models.TelemetryRow, n)
	for i := range rows {
		rows[i] = row
	}
	return rows
}

func TestScoreFlatBatchIsNormal(t *testing.T) {
	rows := constantRows(20, models.TelemetryRow{"Voltage": 48, "Current": 5, "Power": 240})
	score := NewScorer(nil).Score(aggregate(t, rows, models.DefaultFeatures...))

	if score.Label != models.Normal {
		t.Errorf("Label = %v, want Normal", score.Label)
	}
	if score.Base != 0.5 {
		t.Errorf("Base = %v, want exactly 0.5", score.Base)
	}
	if len(score.Fired) != 0 {
		t.Errorf("expected no fired rules, got %v", score.Fired)
	}
}

func TestScoreLowVoltage(t *testing.T) {
	rows := constantRows(10, models.TelemetryRow{"Voltage": 28})
	score := NewScorer(nil).Score(aggregate(t, rows, "Voltage"))

	if score.Label != models.LineLineFault {
		t.Errorf("Label = %v, want Line-Line Fault", score.Label)
	}
	if score.Base < 0.9 {
		t.Errorf("Base = %v, want >= 0.9", score.Base)
	}
	if !reflect.DeepEqual(score.Fired, []string{"voltage_low"}) {
		t.Errorf("Fired = %v", score.Fired)
	}
}

func TestScoreRuleOrdering(t *testing.T) {
	tests := []struct {
		name      string
		rows      []models.TelemetryRow
		features  []string
		wantLabel models.FaultType
		wantBase  float64
		wantFired []string
	}{
		{
			name:      "high current alone",
			rows:      constantRows(5, models.TelemetryRow{"Voltage": 48, "Current": 9}),
			features:  []string{"Voltage", "Current"},
			wantLabel: models.GroundFault,
			wantBase:  0.7,
			wantFired: []string{"current_high"},
		},
		{
			name:      "low voltage wins over high current",
			rows:      constantRows(5, models.TelemetryRow{"Voltage": 30, "Current": 9}),
			features:  []string{"Voltage", "Current"},
			wantLabel: models.LineLineFault,
			wantBase:  0.95,
			wantFired: []string{"voltage_low", "current_high"},
		},
		{
			name: "power drops set open circuit",
			rows: []models.TelemetryRow{
				{"Power": 200}, {"Power": 50}, {"Power": 200}, {"Power": 50}, {"Power": 200},
			},
			features:  []string{"Power"},
			wantLabel: models.OpenCircuit,
			wantBase:  0.75,
			wantFired: []string{"power_drops"},
		},
		{
			name: "current keeps label over power drops",
			rows: []models.TelemetryRow{
				{"Current": 9, "Power": 200}, {"Current": 9, "Power": 50},
				{"Current": 9, "Power": 200}, {"Current": 9, "Power": 50},
			},
			features:  []string{"Current", "Power"},
			wantLabel: models.GroundFault,
			wantBase:  0.95,
			wantFired: []string{"current_high", "power_drops"},
		},
		{
			name: "voltage variance",
			rows: []models.TelemetryRow{
				{"Voltage": 40}, {"Voltage": 60}, {"Voltage": 40}, {"Voltage": 60},
			},
			features:  []string{"Voltage"},
			wantLabel: models.LineLineFault,
			wantBase:  0.8,
			wantFired: []string{"voltage_variance"},
		},
		{
			name:      "unrequested feature is ignored",
			rows:      constantRows(5, models.TelemetryRow{"Voltage": 20, "Current": 5}),
			features:  []string{"Current"},
			wantLabel: models.Normal,
			wantBase:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := NewScorer(nil).Score(aggregate(t, tt.rows, tt.features...))
			if score.Label != tt.wantLabel {
				t.Errorf("Label = %v, want %v", score.Label, tt.wantLabel)
			}
			if !almostEqual(score.Base, tt.wantBase) {
				t.Errorf("Base = %v, want %v", score.Base, tt.wantBase)
			}
			if len(score.Fired) != len(tt.wantFired) || (len(tt.wantFired) > 0 && !reflect.DeepEqual(score.Fired, tt.wantFired)) {
				t.Errorf("Fired = %v, want %v", score.Fired, tt.wantFired)
			}
		})
	}
}

func TestScoreBaseIsClamped(t *testing.T) {
	// variance, low mean and high current all fire: 0.5 + 0.9 would exceed the cap
	rows := []models.TelemetryRow{
		{"Voltage": 5, "Current": 9}, {"Voltage": 30, "Current": 9},
		{"Voltage": 5, "Current": 9}, {"Voltage": 30, "Current": 9},
	}
	score := NewScorer(nil).Score(aggregate(t, rows, "Voltage", "Current"))

	if score.Base != MaxProbability {
		t.Errorf("Base = %v, want %v", score.Base, MaxProbability)
	}
	if !almostEqual(score.Raw, 0.9) {
		t.Errorf("Raw = %v, want 0.9", score.Raw)
	}
}

func TestScoreCustomRules(t *testing.T) {
	rules := []Rule{{
		Name:    "always",
		Delta:   0.1,
		Label:   models.Degradation,
		Mode:    IfUnset,
		Applies: func(aggregator.BatchStats) bool { return true },
	}}
	score := NewScorer(rules).Score(aggregator.BatchStats{})

	if score.Label != models.Degradation || !almostEqual(score.Base, 0.6) {
		t.Errorf("got %v / %v, want Degradation / 0.6", score.Label, score.Base)
	}
}
