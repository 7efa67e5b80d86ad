package apiclient

import (
	"github.com/marmos91/nfs4state/internal/cli/health"
)

// Health calls the liveness probe.
func (c *Client) Health() (*health.Response, error) {
	return getResource[health.Response](c, "/health")
}

// Ready calls the readiness probe. An unhealthy server yields an APIError
// with status 503.
func (c *Client) Ready() (*health.Response, error) {
	return getResource[health.Response](c, "/health/ready")
}
