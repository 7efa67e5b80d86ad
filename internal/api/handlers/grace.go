package handlers

import (
	"fmt"
	"net/http"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// GraceHandler serves the grace period endpoints.
type GraceHandler struct {
	grace *state.GraceManager
}

// NewGraceHandler creates a grace handler.
func NewGraceHandler(grace *state.GraceManager) *GraceHandler {
	return &GraceHandler{grace: grace}
}

// GraceStatusResponse is the body of GET /api/v1/grace.
type GraceStatusResponse struct {
	state.GraceStatus
	Message string `json:"message"`
}

// Status handles GET /api/v1/grace.
func (h *GraceHandler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, graceResponse(h.grace.Status()))
}

// ForceEnd handles POST /api/v1/grace/end.
func (h *GraceHandler) ForceEnd(w http.ResponseWriter, r *http.Request) {
	if !h.grace.InGrace() {
		Conflict(w, "Grace period is not active")
		return
	}

	h.grace.ForceEnd()
	logger.InfoCtx(r.Context(), "Grace period ended via API")
	WriteJSONOK(w, graceResponse(h.grace.Status()))
}

func graceResponse(status state.GraceStatus) GraceStatusResponse {
	msg := "Grace period not active"
	if status.Active {
		msg = fmt.Sprintf("Grace period active: %.0fs remaining (%d/%d clients reclaimed)",
			status.RemainingSeconds, status.ReclaimedClients, status.ExpectedClients)
	}
	return GraceStatusResponse{GraceStatus: status, Message: msg}
}
