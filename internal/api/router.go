package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"pv-monitor/internal/ml"
	"pv-monitor/internal/observability"
	"pv-monitor/internal/services"
)

// AllowedHeaders are the request headers accepted from browser clients
var AllowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// ModelDescriber describes the classifier served at /model
type ModelDescriber interface {
	Describe() ml.ModelInfo
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer is built from
type Deps struct {
	Predictions  *services.PredictionService
	History      *services.HistoryService
	Status       *services.StatusService
	Model        ModelDescriber
	Store        Pinger
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	MaxBodyBytes int64
	AccessLog    io.Writer // nil disables the access log
}

// NewRouter registers the routes on a gorilla/mux router
func NewRouter(deps Deps) *mux.Router {
	s := newServer(deps)

	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/predict", s.predict).Methods(http.MethodPost)
	r.HandleFunc("/history", s.listHistory).Methods(http.MethodGet)
	r.HandleFunc("/system-status", s.getStatus).Methods(http.MethodGet)
	r.HandleFunc("/system-status", s.setStatus).Methods(http.MethodPost)
	r.HandleFunc("/model", s.model).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	return r
}

// NewHandler wraps the router with CORS and the optional access log
func NewHandler(deps Deps) http.Handler {
	var h http.Handler = NewRouter(deps)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedHeaders(AllowedHeaders),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
	)(h)
	if deps.AccessLog != nil {
		h = handlers.LoggingHandler(deps.AccessLog, h)
	}
	return h
}
