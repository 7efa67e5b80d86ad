package apiclient

import (
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// GraceStatusResponse represents the grace period status returned by the API.
type GraceStatusResponse struct {
	state.GraceStatus
	Message string `json:"message"`
}

// GraceStatus returns the current grace period status.
// This endpoint is unauthenticated.
func (c *Client) GraceStatus() (*GraceStatusResponse, error) {
	return getResource[GraceStatusResponse](c, "/api/v1/grace")
}

// ForceEndGrace force-ends the grace period (admin only).
func (c *Client) ForceEndGrace() (*GraceStatusResponse, error) {
	var resp GraceStatusResponse
	if err := c.post("/api/v1/grace/end", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
