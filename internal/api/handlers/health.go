package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// HealthCheckTimeout bounds the backend probe of the readiness check.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler serves the unauthenticated health probes.
type HealthHandler struct {
	handler   *state.StateHandler
	startTime time.Time
}

// NewHealthHandler creates a health handler. handler may be nil, in which
// case readiness reports unhealthy.
func NewHealthHandler(handler *state.StateHandler) *HealthHandler {
	return &HealthHandler{
		handler:   handler,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, healthyResponse(map[string]any{
		"service":    "nfs4stated",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready. It probes the lock backend, which is
// the only dependency that can be unavailable.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.handler == nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("state handler not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	locks := h.handler.LockManager()
	objects, err := locks.ListObjects(ctx)
	if err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("lock backend: "+err.Error()))
		return
	}

	WriteJSONOK(w, healthyResponse(map[string]any{
		"clients":        h.handler.ClientCount(),
		"locked_objects": len(objects),
		"distributed":    locks.Backend().Distributed(),
		"in_grace":       h.handler.Grace().InGrace(),
		"boot_epoch":     h.handler.BootEpoch(),
		"latency":        time.Since(start).String(),
	}))
}
