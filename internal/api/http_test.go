package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pv-monitor/internal/database"
	"pv-monitor/internal/logging"
	"pv-monitor/internal/ml"
	"pv-monitor/internal/models"
	"pv-monitor/internal/observability"
	"pv-monitor/internal/services"
)

type testEnv struct {
	store   *database.MemoryStore
	handler http.Handler
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, maxRows int, strict bool) *testEnv {
	t.Helper()
	store := database.NewMemoryStore()
	metrics := observability.NewMetrics()
	logger := logging.Discard()

	validator, err := services.NewValidator(maxRows)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	predictor := ml.NewPredictor(rand.New(rand.NewSource(7)))
	return &testEnv{
		store:   store,
		metrics: metrics,
		handler: NewHandler(Deps{
			Predictions: services.NewPredictionService(store, predictor, validator, services.PredictionServiceConfig{
				StrictAudit: strict,
				Metrics:     metrics,
				Logger:      logger,
			}),
			History:      services.NewHistoryService(store),
			Status:       services.NewStatusService(store, metrics, logger),
			Model:        predictor,
			Store:        store,
			Metrics:      metrics,
			Logger:       logger,
			MaxBodyBytes: 1 << 20,
		}),
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func rowsJSON(n int, row string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = row
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestPredictEndpoint(t *testing.T) {
	env := newTestEnv(t, 1000, false)

	rec := env.do(t, http.MethodPost, "/predict",
		`{"data":`+rowsJSON(10, `{"Voltage":28}`)+`,"features":["Voltage"],"datasetName":"site<1>.csv"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		Predictions []struct {
			FaultType   string  `json:"faultType"`
			Probability float64 `json:"probability"`
		} `json:"predictions"`
		TopPrediction struct {
			FaultType   string  `json:"faultType"`
			Probability float64 `json:"probability"`
		} `json:"topPrediction"`
		Severity  string `json:"severity"`
		Timestamp string `json:"timestamp"`
		Degraded  *bool  `json:"degraded"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Predictions) != 7 {
		t.Errorf("predictions = %d, want 7", len(resp.Predictions))
	}
	if resp.TopPrediction.FaultType != "Line-Line Fault" || resp.Severity != "Critical" {
		t.Errorf("unexpected top %+v severity %s", resp.TopPrediction, resp.Severity)
	}
	if resp.Timestamp == "" || resp.Degraded != nil {
		t.Errorf("timestamp=%q degraded=%v", resp.Timestamp, resp.Degraded)
	}

	preds := env.store.Predictions()
	if len(preds) != 1 || preds[0].DatasetName != "site_1_.csv" || preds[0].Source != "api" {
		t.Errorf("unexpected stored predictions %+v", preds)
	}

	status := env.do(t, http.MethodGet, "/system-status", "")
	var s map[string]any
	_ = json.Unmarshal(status.Body.Bytes(), &s)
	if s["status"] != "Fault" || s["current_fault"] != "Line-Line Fault" {
		t.Errorf("status not updated: %v", s)
	}
}

func TestPredictValidation(t *testing.T) {
	env := newTestEnv(t, 1000, false)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty data", `{"data":[]}`, "data"},
		{"too many rows", `{"data":` + rowsJSON(1001, `{"Voltage":1}`) + `}`, "data"},
		{"unknown feature", `{"data":[{"Voltage":1}],"features":["Pressure"]}`, "features"},
		{"malformed", `{"data":`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/predict", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body)
			}
			var body map[string]string
			_ = json.Unmarshal(rec.Body.Bytes(), &body)
			if body["field"] != tt.field || body["error"] == "" {
				t.Errorf("unexpected error body %v", body)
			}
		})
	}

	if n := len(env.store.Predictions()); n != 0 {
		t.Errorf("rejected requests must not be persisted, got %d", n)
	}
}

func TestPredictAcceptsMaxRows(t *testing.T) {
	env := newTestEnv(t, 1000, false)
	rec := env.do(t, http.MethodPost, "/predict", `{"data":`+rowsJSON(1000, `{"Voltage":48,"Current":5,"Power":240}`)+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, 1000, false)
	big := `{"data":[{"Voltage":1,"pad":"` + strings.Repeat("x", 2<<20) + `"}]}`
	rec := env.do(t, http.MethodPost, "/predict", big)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

type failingStore struct {
	*database.MemoryStore
}

func (failingStore) InsertPrediction(context.Context, *models.PredictionRecord) error {
	return errors.New("disk full")
}

func TestPredictStrictAudit(t *testing.T) {
	store := failingStore{database.NewMemoryStore()}
	validator, _ := services.NewValidator(1000)
	predictor := ml.NewPredictor(rand.New(rand.NewSource(7)))
	logger := logging.Discard()

	for _, strict := range []bool{false, true} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			h := NewHandler(Deps{
				Predictions: services.NewPredictionService(store, predictor, validator, services.PredictionServiceConfig{StrictAudit: strict, Logger: logger}),
				History:     services.NewHistoryService(store),
				Status:      services.NewStatusService(store, nil, logger),
				Model:       predictor,
				Logger:      logger,
			})

			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"data":[{"Voltage":48}]}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if strict {
				if rec.Code != http.StatusInternalServerError {
					t.Fatalf("status = %d, want 500", rec.Code)
				}
				return
			}
			if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"degraded":true`)) {
				t.Fatalf("status = %d body = %s, want degraded 200", rec.Code, rec.Body)
			}
		})
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, 1000, false)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/predict", `{"data":[{"Voltage":28},{"Voltage":29}]}`)
	}
	env.do(t, http.MethodPost, "/predict", `{"data":[{"Voltage":48,"Current":5,"Power":240}]}`)

	rec := env.do(t, http.MethodGet, "/history?limit=2&offset=x", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page models.HistoryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 3 || page.Limit != 2 || page.Offset != 0 || len(page.History) != 2 {
		t.Errorf("unexpected page %+v", page)
	}
	if page.History[0].FaultType != models.LineLineFault {
		t.Errorf("unexpected fault %v", page.History[0].FaultType)
	}

	rec = env.do(t, http.MethodGet, "/history", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Limit != services.DefaultHistoryLimit {
		t.Errorf("default limit = %d", page.Limit)
	}
}

func TestSystemStatusEndpoints(t *testing.T) {
	env := newTestEnv(t, 1000, false)

	rec := env.do(t, http.MethodPost, "/system-status", `{"status":"Warning","currentFault":"Degradation","confidence":0.55}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	var s map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &s)
	if s["status"] != "Warning" || s["current_fault"] != "Degradation" || s["confidence"] != 0.55 {
		t.Errorf("unexpected status %v", s)
	}

	rec = env.do(t, http.MethodPost, "/system-status", "")
	_ = json.Unmarshal(rec.Body.Bytes(), &s)
	if rec.Code != http.StatusOK || s["status"] != "Normal" || s["current_fault"] != "Normal" {
		t.Errorf("empty body should reset to defaults: %d %v", rec.Code, s)
	}

	rec = env.do(t, http.MethodPost, "/system-status", `{"status":"Melting"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/system-status", `{"status":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed json", rec.Code)
	}
}

func TestModelAndHealth(t *testing.T) {
	env := newTestEnv(t, 1000, false)

	rec := env.do(t, http.MethodGet, "/model", "")
	var info map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	classes, _ := info["fault_classes"].([]any)
	if len(classes) != 7 || classes[1] != "Line-Line Fault" {
		t.Errorf("unexpected fault classes %v", info["fault_classes"])
	}

	rec = env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, 1000, false)

	req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type, apikey")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 1000, false)
	env.do(t, http.MethodPost, "/predict", `{"data":[]}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	if !strings.Contains(body, `pv_validation_failures_total{field="data"} 1`) {
		t.Errorf("validation failure not exported:\n%s", body)
	}
	if !strings.Contains(body, `pv_http_requests_total{code="4xx",route="/predict"} 1`) {
		t.Errorf("http request not exported:\n%s", body)
	}
}
