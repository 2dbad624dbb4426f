package models

import "time"

// ScoredPrediction pairs a fault class with its probability
type ScoredPrediction struct {
	FaultType   FaultType `json:"faultType"`
	Probability float64   `json:"probability"`
}

// PredictionRequest is a validated, normalized prediction request
type PredictionRequest struct {
	Rows        []TelemetryRow
	Features    []string
	DatasetName string
	Source      string
}

// PredictionResponse is returned to the caller of the prediction pipeline
type PredictionResponse struct {
	Predictions   []ScoredPrediction `json:"predictions"`
	TopPrediction ScoredPrediction   `json:"topPrediction"`
	Severity      Severity           `json:"severity"`
	Timestamp     string             `json:"timestamp"`
	Degraded      bool               `json:"degraded,omitempty"`
}

// InputFeatures describes what a prediction was computed from
type InputFeatures struct {
	Features []string `json:"features"`
	RowCount int      `json:"rowCount"`
}

// PredictionRecord is the immutable log entry written for every pipeline run
type PredictionRecord struct {
	ID             string             `json:"id"`
	PredictedFault FaultType          `json:"predicted_fault"`
	Probabilities  []ScoredPrediction `json:"probabilities"`
	InputFeatures  InputFeatures      `json:"input_features"`
	DatasetName    string             `json:"dataset_name"`
	Source         string             `json:"source"`
	CreatedAt      time.Time          `json:"created_at"`
}

// HistoryRecord is an append-only entry for a qualifying fault prediction
type HistoryRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	FaultType    FaultType `json:"fault_type"`
	Severity     Severity  `json:"severity"`
	Confidence   float64   `json:"confidence"`
	DatasetName  string    `json:"dataset_name"`
	FeaturesUsed []string  `json:"features_used"`
	Duration     *string   `json:"duration"` // how long the fault lasted, e.g. "12m"; null while unknown
}

// HistoryPage is one page of fault history, newest first
type HistoryPage struct {
	History []HistoryRecord `json:"history"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// SystemStatus is the singleton live status record
type SystemStatus struct {
	ID           string      `json:"id"`
	Status       StatusLevel `json:"status"`
	CurrentFault FaultType   `json:"current_fault"`
	Confidence   float64     `json:"confidence"`
	LastUpdated  time.Time   `json:"last_updated"`
}

// FaultAlert is published to downstream consumers for each qualifying prediction
type FaultAlert struct {
	PredictionID string    `json:"prediction_id"`
	Source       string    `json:"source"`
	FaultType    FaultType `json:"fault_type"`
	Severity     Severity  `json:"severity"`
	Confidence   float64   `json:"confidence"`
	DatasetName  string    `json:"dataset_name"`
	Timestamp    time.Time `json:"timestamp"`
}
