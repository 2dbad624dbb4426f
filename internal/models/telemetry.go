package models

import (
	"math"
	"strings"
	"time"
)

// Feature names accepted in telemetry rows and feature lists.
const (
	FeatureVoltage     = "Voltage"
	FeatureCurrent     = "Current"
	FeaturePower       = "Power"
	FeatureIrradiance  = "Irradiance"
	FeatureTemperature = "Temperature"
)

// AllowedFeatures lists the features the aggregator understands, in display order.
var AllowedFeatures = []string{FeatureVoltage, FeatureCurrent, FeaturePower, FeatureIrradiance, FeatureTemperature}

// DefaultFeatures is used when a request does not name any features.
var DefaultFeatures = []string{FeatureVoltage, FeatureCurrent, FeaturePower}

// CanonicalFeature maps any case variant of an allowed feature to its canonical spelling.
func CanonicalFeature(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, f := range AllowedFeatures {
		if strings.EqualFold(name, f) {
			return f, true
		}
	}
	return "", false
}

// TelemetryRow is one sample of a telemetry batch, keyed by feature name.
type TelemetryRow map[string]float64

// Value returns the reading for feature, trying the capitalized key before the lowercase one.
// Missing or non-finite readings are reported as 0.
func (r TelemetryRow) Value(feature string) float64 {
	if v, ok := r[feature]; ok && v != 0 && isFinite(v) {
		return v
	}
	if v, ok := r[strings.ToLower(feature)]; ok && isFinite(v) {
		return v
	}
	return 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TelemetryBatch is a raw prediction request received from a site gateway over MQTT.
type TelemetryBatch struct {
	SiteID     string    `json:"site_id"`
	ReceivedAt time.Time `json:"received_at"`
	Payload    []byte    `json:"-"`
}
