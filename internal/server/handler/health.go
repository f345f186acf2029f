package handler

import (
	"net/http"
	"time"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "freightarb"

// HealthHandler serves the liveness endpoints.
type HealthHandler struct {
	now func() time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

// HealthCheck reports that the process is serving.
// GET /health, GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"service":   ServiceName,
	})
}
