package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse is the standard /healthz response body.
type HealthResponse struct {
	Status    string         `json:"status"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func healthHandler(b *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := b.HealthStatus()
		var details map[string]any
		if status != "healthy" {
			details = b.HealthDetails()
		}
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: status, Service: b.Name(), Version: b.Version(),
			Timestamp: time.Now().Format(time.RFC3339), Details: details,
		})
	}
}

func readinessHandler(b *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := b.HealthStatus()
		code := http.StatusOK
		var details map[string]any
		if status != "healthy" {
			code = http.StatusServiceUnavailable
			details = b.HealthDetails()
		}
		writeJSON(w, code, HealthResponse{
			Status: status, Service: b.Name(), Version: b.Version(),
			Timestamp: time.Now().Format(time.RFC3339), Details: details,
		})
	}
}

// Router builds the ops surface every worker process exposes: /healthz,
// /readyz, /metrics (spec.md's operational non-goals exclude a richer
// control-plane API, but liveness/readiness/metrics are ambient concerns
// carried regardless, per the teacher's own /health, /ready, /info trio).
func (b *BaseService) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler(b)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", readinessHandler(b)).Methods(http.MethodGet, http.MethodHead)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}
