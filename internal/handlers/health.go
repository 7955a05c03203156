package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything whose reachability the health check reports
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the backing store answers
type HealthHandler struct {
	deps map[string]Pinger
	log  *zap.Logger
}

// NewHealthHandler creates a health handler over named dependencies
func NewHealthHandler(deps map[string]Pinger, log *zap.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, log: log}
}

// Handle answers 200 when every dependency pings, 503 otherwise
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.log.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}, h.log)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, h.log)
}
