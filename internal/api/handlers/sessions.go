package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// SessionHandler serves the session endpoints.
type SessionHandler struct {
	handler *state.StateHandler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(handler *state.StateHandler) *SessionHandler {
	return &SessionHandler{handler: handler}
}

// SessionListResponse is the body of the session listings.
type SessionListResponse struct {
	Count    int                 `json:"count"`
	Sessions []state.SessionInfo `json:"sessions"`
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.handler.ListSessions()
	infos := make([]state.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].ClientID != infos[j].ClientID {
			return infos[i].ClientID < infos[j].ClientID
		}
		return infos[i].ID < infos[j].ID
	})

	WriteJSONOK(w, SessionListResponse{Count: len(infos), Sessions: infos})
}

// Destroy handles DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseSessionID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "Invalid session ID: "+err.Error())
		return
	}

	if err := h.handler.DestroySession(id); err != nil {
		writeStateError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Session destroyed via API", logger.SessionID(id.String()))
	WriteNoContent(w)
}
