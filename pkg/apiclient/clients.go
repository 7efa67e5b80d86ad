package apiclient

import (
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// ClientList is the response of ListClients.
type ClientList struct {
	Count   int                `json:"count"`
	Clients []state.ClientInfo `json:"clients"`
}

// SessionList is the response of the session listings.
type SessionList struct {
	Count    int                 `json:"count"`
	Sessions []state.SessionInfo `json:"sessions"`
}

// ListClients returns every live client.
func (c *Client) ListClients() ([]state.ClientInfo, error) {
	list, err := getResource[ClientList](c, "/api/v1/clients")
	if err != nil {
		return nil, err
	}
	return list.Clients, nil
}

// GetClient returns one client by id.
func (c *Client) GetClient(id uint64) (*state.ClientInfo, error) {
	return getResource[state.ClientInfo](c, resourcePath("/api/v1/clients/%x", id))
}

// ClientSessions returns the sessions of one client.
func (c *Client) ClientSessions(id uint64) ([]state.SessionInfo, error) {
	list, err := getResource[SessionList](c, resourcePath("/api/v1/clients/%x/sessions", id))
	if err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// EvictClient releases a client and all of its state (admin only).
func (c *Client) EvictClient(id uint64) error {
	return deleteResource(c, resourcePath("/api/v1/clients/%x", id))
}
