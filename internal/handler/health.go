package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gratefultime/journal-api/internal/ratelimit"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db      HealthChecker
	limiter *ratelimit.Limiter
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for dependencies that are not initialized.
func NewHealthHandler(db HealthChecker, limiter *ratelimit.Limiter) *HealthHandler {
	return &HealthHandler{db: db, limiter: limiter}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status          string            `json:"status"`
	RateLimiterMode string            `json:"rate_limiter_mode,omitempty"`
	Checks          map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint. No dependency checks.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is a readiness probe endpoint. It checks dependencies and
// reports the committed rate limiter mode; the limiter mode never makes
// the service unready, since local fallback still serves traffic.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	} else {
		checks["postgres"] = "not configured"
	}

	var mode string
	if h.limiter != nil {
		mode = string(h.limiter.Mode())
		if err := h.limiter.Ping(ctx); err != nil {
			checks["rate_limiter"] = "error: " + err.Error()
		} else {
			checks["rate_limiter"] = "ok"
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, HealthResponse{
		Status:          status,
		RateLimiterMode: mode,
		Checks:          checks,
	})
}
