package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// ClientHandler serves the client registry endpoints.
type ClientHandler struct {
	handler *state.StateHandler
}

// NewClientHandler creates a client handler.
func NewClientHandler(handler *state.StateHandler) *ClientHandler {
	return &ClientHandler{handler: handler}
}

// ClientListResponse is the body of GET /api/v1/clients.
type ClientListResponse struct {
	Count   int                `json:"count"`
	Clients []state.ClientInfo `json:"clients"`
}

// List handles GET /api/v1/clients.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	clients := h.handler.ListClients()
	infos := make([]state.ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, c.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	WriteJSONOK(w, ClientListResponse{Count: len(infos), Clients: infos})
}

// Get handles GET /api/v1/clients/{id}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, client.Snapshot())
}

// Sessions handles GET /api/v1/clients/{id}/sessions.
func (h *ClientHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookup(w, r)
	if !ok {
		return
	}

	infos := []state.SessionInfo{}
	for _, s := range h.handler.ListSessions() {
		if s.ClientID == client.ID {
			infos = append(infos, s.Snapshot())
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })

	WriteJSONOK(w, SessionListResponse{Count: len(infos), Sessions: infos})
}

// Evict handles DELETE /api/v1/clients/{id}. The client's sessions, state
// and locks are released as if its lease had expired.
func (h *ClientHandler) Evict(w http.ResponseWriter, r *http.Request) {
	client, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.handler.DestroyClient(r.Context(), client.ID); err != nil {
		logger.ErrorCtx(r.Context(), "Failed to evict client", logger.ClientID(client.ID), logger.Err(err))
		writeStateError(w, err)
		return
	}

	logger.InfoCtx(r.Context(), "Client evicted via API", logger.ClientID(client.ID))
	WriteNoContent(w)
}

func (h *ClientHandler) lookup(w http.ResponseWriter, r *http.Request) (*state.Client, bool) {
	id, err := ParseClientID(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, err.Error())
		return nil, false
	}

	client, err := h.handler.LookupByID(id)
	if err != nil {
		writeStateError(w, err)
		return nil, false
	}
	return client, true
}

// ParseClientID parses a client ID written in hex, with or without a 0x
// prefix.
func ParseClientID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" {
		return 0, errors.New("client ID is required")
	}
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.New("invalid client ID: expected a hex value")
	}
	return id, nil
}
