// Package handlers provides the HTTP handlers of the tabletd admin API.
package handlers

import (
	"net/http"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Has startup recovery finished?
type HealthHandler struct {
	ready func() error
}

// NewHealthHandler creates a new health handler.
//
// ready reports nil once the server accepts lifecycle requests. It may be
// nil, in which case the readiness probe always fails.
func NewHealthHandler(ready func() error) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// Liveness handles GET /healthz.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "tabletd",
	}))
}

// Readiness handles GET /readyz.
//
// Returns 503 Service Unavailable until startup recovery has completed.
// Lifecycle requests received before that are answered with Busy.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}
	if err := h.ready(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"recovery": "complete",
	}))
}
