package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
	validationFailures *prometheus.CounterVec
	persistenceErrors  *prometheus.CounterVec
	statusTransitions  *prometheus.CounterVec
	alerts             *prometheus.CounterVec
	mqttBatches        *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_predictions_total",
			Help: "Fault predictions by leading fault type and severity.",
		}, []string{"fault_type", "severity"}),
		pipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pv_prediction_duration_seconds",
			Help:    "End-to-end prediction pipeline latency including persistence.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_validation_failures_total",
			Help: "Rejected prediction requests by offending field.",
		}, []string{"field"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_persistence_errors_total",
			Help: "Store write failures by protocol step.",
		}, []string{"step"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_status_transitions_total",
			Help: "Live status overwrites by target status.",
		}, []string{"status"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_fault_alerts_total",
			Help: "Fault alert deliveries by result.",
		}, []string{"result"}),
		mqttBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_mqtt_batches_total",
			Help: "Telemetry batches received over MQTT by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pv_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		m.predictions,
		m.pipelineDuration,
		m.validationFailures,
		m.persistenceErrors,
		m.statusTransitions,
		m.alerts,
		m.mqttBatches,
		m.httpRequests,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePrediction(faultType, severity string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(faultType, severity).Inc()
	m.pipelineDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ValidationFailed(field string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(field).Inc()
}

func (m *Metrics) PersistenceFailed(step string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(step).Inc()
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) AlertDelivered(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.alerts.WithLabelValues(result).Inc()
}

func (m *Metrics) MQTTBatch(outcome string) {
	if m == nil {
		return
	}
	m.mqttBatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
