package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Pinger is a backend whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health check.
type HealthHandler struct {
	startedAt time.Time
	checks    map[string]Pinger
}

// NewHealthHandler creates a HealthHandler. checks names the enabled
// backends; it may be nil.
func NewHealthHandler(startedAt time.Time, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, checks: checks}
}

// HealthCheck reports the process is alive and pings each backend. It does
// not reflect the stream. Any unreachable backend turns the answer into 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	backends := make(map[string]string, len(h.checks))

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.checks[name].Ping(ctx)
		cancel()
		if err != nil {
			backends[name] = "unreachable"
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		backends[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"backends":       backends,
	})
}
