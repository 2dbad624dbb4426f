package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FaultType is one of the fixed diagnostic categories a telemetry window is classified into.
// The declaration order is the canonical iteration and tie-break order.
type FaultType int

const (
	Normal FaultType = iota
	LineLineFault
	GroundFault
	OpenCircuit
	PartialShading
	Degradation
	ArcFault
)

var faultLabels = [...]string{
	Normal:         "Normal",
	LineLineFault:  "Line-Line Fault",
	GroundFault:    "Ground Fault",
	OpenCircuit:    "Open Circuit",
	PartialShading: "Partial Shading",
	Degradation:    "Degradation",
	ArcFault:       "Arc Fault",
}

var faultNames = [...]string{
	Normal:         "Normal",
	LineLineFault:  "LineLineFault",
	GroundFault:    "GroundFault",
	OpenCircuit:    "OpenCircuit",
	PartialShading: "PartialShading",
	Degradation:    "Degradation",
	ArcFault:       "ArcFault",
}

// AllFaultTypes returns every fault class in canonical order.
func AllFaultTypes() []FaultType {
	return []FaultType{Normal, LineLineFault, GroundFault, OpenCircuit, PartialShading, Degradation, ArcFault}
}

// String returns the display label, e.g. "Line-Line Fault".
func (f FaultType) String() string {
	if !f.Valid() {
		return fmt.Sprintf("FaultType(%d)", int(f))
	}
	return faultLabels[f]
}

// Valid reports whether f is one of the declared fault classes.
func (f FaultType) Valid() bool {
	return f >= Normal && f <= ArcFault
}

// ParseFaultType accepts either the display label or the compact identifier, ignoring case.
func ParseFaultType(s string) (FaultType, error) {
	s = strings.TrimSpace(s)
	for _, f := range AllFaultTypes() {
		if strings.EqualFold(s, faultLabels[f]) || strings.EqualFold(s, faultNames[f]) {
			return f, nil
		}
	}
	return Normal, fmt.Errorf("unknown fault type %q", s)
}

func (f FaultType) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid fault type %d", int(f))
	}
	return json.Marshal(faultLabels[f])
}

func (f *FaultType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("fault type must be a string: %w", err)
	}
	parsed, err := ParseFaultType(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Severity is the coarse bucket derived from the leading probability.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// StatusLevel is the state of the live system status record.
type StatusLevel string

const (
	StatusNormal  StatusLevel = "Normal"
	StatusWarning StatusLevel = "Warning"
	StatusFault   StatusLevel = "Fault"
)

// ParseStatusLevel matches one of Normal, Warning or Fault, ignoring case.
func ParseStatusLevel(s string) (StatusLevel, error) {
	for _, l := range []StatusLevel{StatusNormal, StatusWarning, StatusFault} {
		if strings.EqualFold(strings.TrimSpace(s), string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}
