// Package auth provides JWT authentication for the admin API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role names carried in tokens.
const (
	// RoleAdmin may evict clients and end the grace period.
	RoleAdmin = "admin"

	// RoleViewer may only read.
	RoleViewer = "viewer"
)

// Claims represents the JWT claims of an admin API token.
type Claims struct {
	jwt.RegisteredClaims

	// Role is RoleAdmin or RoleViewer.
	Role string `json:"role"`
}

// IsAdmin returns true if the token carries the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}
