package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// HealthCheck pings one dependency. A nil error means the dependency is reachable.
type HealthCheck func(ctx context.Context) error

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler answers liveness and readiness checks. Any failing check turns the response into a 503.
type HealthHandler struct {
	Checks map[string]HealthCheck
	Logger *slog.Logger
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, healthy := h.run(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		return
	}
	WriteJSON(w, status, resp)
}

func (h *HealthHandler) run(ctx context.Context) (healthResponse, bool) {
	resp := healthResponse{Status: "ok"}
	if len(h.Checks) == 0 {
		return resp, true
	}

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	healthy := true
	resp.Checks = make(map[string]string, len(names))
	for _, name := range names {
		if err := h.Checks[name](ctx); err != nil {
			healthy = false
			resp.Checks[name] = "unavailable"
			if h.Logger != nil {
				h.Logger.Warn("health check failed", "check", name, "error", err)
			}
			continue
		}
		resp.Checks[name] = "ok"
	}
	if !healthy {
		resp.Status = "degraded"
	}
	return resp, healthy
}
