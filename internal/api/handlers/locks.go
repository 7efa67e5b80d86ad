package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
)

// LockHandler serves the lock inspection endpoints.
type LockHandler struct {
	locks *lock.Manager
}

// NewLockHandler creates a lock handler.
func NewLockHandler(locks *lock.Manager) *LockHandler {
	return &LockHandler{locks: locks}
}

// ObjectListResponse is the body of GET /api/v1/locks.
type ObjectListResponse struct {
	Count       int      `json:"count"`
	Objects     []string `json:"objects"`
	Blocked     int      `json:"blocked"`
	Distributed bool     `json:"distributed"`
}

// LockListResponse is the body of GET /api/v1/locks/{object}.
type LockListResponse struct {
	Object string       `json:"object"`
	Count  int          `json:"count"`
	Locks  []*lock.Lock `json:"locks"`
}

// Objects handles GET /api/v1/locks.
func (h *LockHandler) Objects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.locks.ListObjects(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list locked objects: "+err.Error())
		return
	}
	sort.Strings(objects)

	WriteJSONOK(w, ObjectListResponse{
		Count:       len(objects),
		Objects:     objects,
		Blocked:     h.locks.BlockedCount(),
		Distributed: h.locks.Backend().Distributed(),
	})
}

// List handles GET /api/v1/locks/{object}. The object is the hex encoded
// file handle.
func (h *LockHandler) List(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "object")
	objectID, err := lock.ParseObjectKey(key)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	locks, err := h.locks.ListLocks(r.Context(), objectID)
	if err != nil {
		InternalServerError(w, "Failed to list locks: "+err.Error())
		return
	}
	if locks == nil {
		locks = []*lock.Lock{}
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Offset < locks[j].Offset })

	WriteJSONOK(w, LockListResponse{Object: key, Count: len(locks), Locks: locks})
}

// Purge handles DELETE /api/v1/locks/{object}. Every lock on the object is
// dropped regardless of owner.
func (h *LockHandler) Purge(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "object")
	objectID, err := lock.ParseObjectKey(key)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	n, err := h.locks.RemoveAllForObject(r.Context(), objectID)
	if err != nil {
		InternalServerError(w, "Failed to purge locks: "+err.Error())
		return
	}

	logger.WarnCtx(r.Context(), "Locks purged via API", logger.Object(key), logger.Count(n))
	WriteJSONOK(w, map[string]any{"object": key, "removed": n})
}
