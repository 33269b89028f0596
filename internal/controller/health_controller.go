package controller

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthCheck names one readiness dependency.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

type HealthController struct {
	checks []HealthCheck
}

func NewHealthController(checks ...HealthCheck) *HealthController {
	return &HealthController{checks: checks}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": c.Name + " unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
