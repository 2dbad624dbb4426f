package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"pv-monitor/internal/models"
)

// DefaultDatasetName is recorded when a request does not name its dataset
const DefaultDatasetName = "uploaded_data.xlsx"

// MaxDatasetNameLength bounds the dataset name accepted from callers
const MaxDatasetNameLength = 255

var datasetNameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// Validator checks prediction requests before any computation happens.
// Structure is checked against a JSON Schema, semantics (feature names, batch size) in Go.
type Validator struct {
	schema  *gojsonschema.Schema
	maxRows int
}

// NewValidator compiles the request schema for the given batch cap
func NewValidator(maxRows int) (*Validator, error) {
	if maxRows <= 0 {
		return nil, fmt.Errorf("max rows must be positive, got %d", maxRows)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(requestSchema(maxRows)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}
	return &Validator{schema: schema, maxRows: maxRows}, nil
}

// MaxRows returns the batch cap
func (v *Validator) MaxRows() int {
	return v.maxRows
}

func requestSchema(maxRows int) map[string]any {
	return map[string]any{
		"$schema":  "http://json-schema.org/draft-07/schema#",
		"type":     "object",
		"required": []string{"data"},
		"properties": map[string]any{
			"data": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": maxRows,
				"items":    map[string]any{"type": "object"},
			},
			"features": map[string]any{
				"type":     []string{"array", "null"},
				"minItems": 1,
				"items":    map[string]any{"type": "string"},
			},
			"datasetName": map[string]any{
				"type":      []string{"string", "null"},
				"maxLength": MaxDatasetNameLength,
			},
		},
	}
}

type rawRequest struct {
	Data        []map[string]any `json:"data"`
	Features    []string         `json:"features"`
	DatasetName *string          `json:"datasetName"`
}

// Decode validates a raw JSON request and returns it normalized
func (v *Validator) Decode(payload []byte, source string) (*models.PredictionRequest, error) {
	req, err := v.Parse(payload, source)
	if err != nil {
		return nil, err
	}
	return v.Check(req)
}

// Parse checks the request against the schema and decodes it without semantic normalization
func (v *Validator) Parse(payload []byte, source string) (*models.PredictionRequest, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, invalid("body", "malformed JSON: %v", err)
	}
	if !result.Valid() {
		return nil, schemaError(result.Errors())
	}

	var raw rawRequest
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, invalid("body", "malformed JSON: %v", err)
	}

	req := &models.PredictionRequest{
		Rows:     decodeRows(raw.Data),
		Features: raw.Features,
		Source:   source,
	}
	if raw.DatasetName != nil {
		req.DatasetName = *raw.DatasetName
	}
	return req, nil
}

// Check applies the semantic rules to an already decoded request and returns a normalized copy
func (v *Validator) Check(req *models.PredictionRequest) (*models.PredictionRequest, error) {
	if req == nil || len(req.Rows) == 0 {
		return nil, invalid("data", "at least one row is required")
	}
	if len(req.Rows) > v.maxRows {
		return nil, invalid("data", "batch has %d rows, maximum is %d", len(req.Rows), v.maxRows)
	}

	features, err := NormalizeFeatures(req.Features)
	if err != nil {
		return nil, err
	}

	out := *req
	out.Features = features
	out.DatasetName = SanitizeDatasetName(req.DatasetName)
	if out.Source == "" {
		out.Source = "api"
	}
	return &out, nil
}

// NormalizeFeatures canonicalizes feature names and drops duplicates, keeping first occurrence.
// An empty list selects the default features.
func NormalizeFeatures(features []string) ([]string, error) {
	if len(features) == 0 {
		return append([]string(nil), models.DefaultFeatures...), nil
	}

	seen := make(map[string]bool, len(features))
	out := make([]string, 0, len(features))
	for _, name := range features {
		canonical, ok := models.CanonicalFeature(name)
		if !ok {
			return nil, invalid("features", "unsupported feature %q; allowed: %s",
				name, strings.Join(models.AllowedFeatures, ", "))
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out, nil
}

// SanitizeDatasetName replaces path and shell metacharacters and falls back to the default name
func SanitizeDatasetName(name string) string {
	name = strings.TrimSpace(datasetNameReplacer.Replace(name))
	if name == "" {
		return DefaultDatasetName
	}
	return name
}

// decodeRows keeps numeric values only; timestamps and labels in a row are ignored
func decodeRows(data []map[string]any) []models.TelemetryRow {
	rows := make([]models.TelemetryRow, len(data))
	for i, item := range data {
		row := make(models.TelemetryRow, len(item))
		for key, value := range item {
			if f, ok := value.(float64); ok {
				row[key] = f
			}
		}
		rows[i] = row
	}
	return rows
}

func schemaError(issues []gojsonschema.ResultError) error {
	if len(issues) == 0 {
		return invalid("body", "failed schema validation")
	}

	reasons := make([]string, 0, len(issues))
	for _, issue := range issues {
		reasons = append(reasons, issue.String())
	}
	return &ValidationError{Field: issueField(issues[0]), Reason: strings.Join(reasons, "; ")}
}

// issueField returns the top-level request field an issue refers to
func issueField(issue gojsonschema.ResultError) string {
	field := issue.Field()
	if field == "(root)" || field == "" {
		if prop, ok := issue.Details()["property"].(string); ok {
			return prop
		}
		return "body"
	}
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[:i]
	}
	return field
}

// AsValidationError extracts the *ValidationError from err, if any
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
