package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the problem body of a failed request. NFS4Status is set when
// the server-side failure was a state engine error, e.g. "NFS4ERR_DELAY".
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	NFS4Status string `json:"nfs4_status,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.NFS4Status != "" {
		msg += " (" + e.NFS4Status + ")"
	}
	return msg
}

// IsAuthError returns true if the request lacked valid credentials or
// permissions.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if this is a not found error.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict returns true if this is a conflict error.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsNotFound reports whether err is an APIError for a missing resource.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
