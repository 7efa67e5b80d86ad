package apiclient

import (
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// ListSessions returns every live session.
func (c *Client) ListSessions() ([]state.SessionInfo, error) {
	list, err := getResource[SessionList](c, "/api/v1/sessions")
	if err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// DestroySession destroys a session by its hex id (admin only).
func (c *Client) DestroySession(id string) error {
	return deleteResource(c, resourcePath("/api/v1/sessions/%s", id))
}
