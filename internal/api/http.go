package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pv-monitor/internal/database"
	"pv-monitor/internal/services"
)

const defaultMaxBodyBytes = 8 << 20

type server struct {
	Deps
	log *slog.Logger
}

func newServer(deps Deps) *server {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &server{Deps: deps, log: log.With("component", "http")}
}

func (s *server) predict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	resp, err := s.Predictions.Submit(r.Context(), body, "api")
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) listHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.History.List(r.Context(), atoi(q.Get("limit")), atoi(q.Get("offset")))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status.Get(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) setStatus(w http.ResponseWriter, r *http.Request) {
	var update services.StatusUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.MaxBodyBytes))
	if err := dec.Decode(&update); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	status, err := s.Status.Set(r.Context(), update)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *server) model(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Model.Describe())
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		if err := s.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeServiceError maps service errors to status codes
func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	if ve, ok := services.AsValidationError(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": ve.Error(), "field": ve.Field})
		return
	}
	if errors.Is(err, database.ErrStatusNotFound) {
		writeError(w, http.StatusNotFound, "system status not found")
		return
	}
	if errors.Is(err, services.ErrPersistence) {
		s.log.Error("prediction rejected by strict audit", "error", err)
		writeError(w, http.StatusInternalServerError, services.ErrPersistence.Error())
		return
	}
	s.log.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// instrument counts requests by route template and status code
func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.Metrics.HTTPRequest(route, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
