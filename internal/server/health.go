package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves liveness and readiness endpoints next to the
// metrics of a running session.
type HealthChecker struct {
	serverContext *ServerContext
	startTime     time.Time
	now           func() time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		now:           time.Now,
	}
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Uptime string            `json:"uptime,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint. It
// succeeds as long as the process serves requests.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint. The
// session is ready while it is not shutting down. The credential state is
// reported but never makes the session unready: an absent or expired
// credential is recovered on the next tool call.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := HealthResponse{
			Status: healthStatusOK,
			Checks: map[string]string{"shutdown": healthStatusOK},
			Uptime: h.now().Sub(h.startTime).Truncate(time.Second).String(),
		}
		status := http.StatusOK

		if h.serverContext != nil {
			if h.serverContext.IsShutdown() {
				response.Status = healthStatusNotReady
				response.Checks["shutdown"] = healthStatusShuttingDown
				status = http.StatusServiceUnavailable
			}
			response.Checks["credential"] = h.serverContext.Credentials().State().String()
			response.Checks["search"] = searchMode(h.serverContext)
		}

		writeHealth(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
}

func searchMode(sc *ServerContext) string {
	if sc.Config().Search.Enabled() {
		return "configured"
	}
	return "placeholder"
}

func writeHealth(w http.ResponseWriter, status int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}
