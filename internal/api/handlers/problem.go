// Package handlers provides the HTTP handlers of the admin API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/nfs4state/pkg/nfs4/state"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// ContentTypeProblemJSON is the media type of error bodies (RFC 7807).
const ContentTypeProblemJSON = "application/problem+json"

// Problem is the error body of every failed request. NFS4Status carries the
// nfsstat4 name when the failure came from the state engine.
type Problem struct {
	Type       string `json:"type,omitempty"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	NFS4Status string `json:"nfs4_status,omitempty"`
}

func writeProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteProblem writes a problem body with the given status.
func WriteProblem(w http.ResponseWriter, status int, detail string) {
	writeProblem(w, Problem{Status: status, Detail: detail})
}

func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, detail)
}

func Unauthorized(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusUnauthorized, detail)
}

func Forbidden(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusForbidden, detail)
}

func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, detail)
}

func Conflict(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusConflict, detail)
}

func InternalServerError(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusInternalServerError, detail)
}

// httpStatusFor maps an nfsstat4 onto the closest HTTP status.
var httpStatusFor = map[uint32]int{
	types.NFS4ERR_STALE_CLIENTID: http.StatusNotFound,
	types.NFS4ERR_BADSESSION:     http.StatusNotFound,
	types.NFS4ERR_DEADSESSION:    http.StatusGone,
	types.NFS4ERR_BAD_STATEID:    http.StatusNotFound,
	types.NFS4ERR_STALE_STATEID:  http.StatusGone,
	types.NFS4ERR_EXPIRED:        http.StatusGone,
	types.NFS4ERR_DELAY:          http.StatusConflict,
	types.NFS4ERR_DENIED:         http.StatusConflict,
	types.NFS4ERR_GRACE:          http.StatusConflict,
	types.NFS4ERR_NO_GRACE:       http.StatusConflict,
	types.NFS4ERR_CLID_INUSE:     http.StatusConflict,
	types.NFS4ERR_INVAL:          http.StatusBadRequest,
	types.NFS4ERR_BAD_RANGE:      http.StatusBadRequest,
	types.NFS4ERR_RESOURCE:       http.StatusServiceUnavailable,
}

// writeStateError writes err as a problem. State engine errors keep their
// nfsstat4 name; anything else is a 500.
func writeStateError(w http.ResponseWriter, err error) {
	var se *state.NFS4StateError
	if !errors.As(err, &se) {
		InternalServerError(w, err.Error())
		return
	}
	status, ok := httpStatusFor[se.Status]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeProblem(w, Problem{
		Status:     status,
		Detail:     se.Message,
		NFS4Status: types.StatusName(se.Status),
	})
}

// WriteJSON writes data as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteJSONOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
