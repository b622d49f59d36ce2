package handler

import (
	"net/http"
)

// HealthResponse represents the readiness response
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// Version is reported by the health endpoints
var Version = "0.1.0"

// Health reports liveness. It never touches dependencies.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// Ready reports whether Postgres and Redis answer
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	services := make(map[string]string)

	check := func(name string, c HealthChecker) {
		switch {
		case c == nil:
			services[name] = "disabled"
		case c.HealthCheck(ctx) != nil:
			services[name] = "unhealthy"
		default:
			services[name] = "healthy"
		}
	}
	check("postgres", h.db)
	check("redis", h.rdb)

	status := "healthy"
	for _, s := range services {
		if s == "unhealthy" {
			status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: status, Version: Version, Services: services})
}
