// Package middleware provides HTTP middleware for the admin API.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/api/handlers"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil outside routes guarded by JWTAuth.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken extracts the token from a Bearer Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// JWTAuth validates the Bearer token of every request and stores its claims
// in the request context. Missing or invalid tokens get 401.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nfs4stated"`)
				handlers.Unauthorized(w, "Authorization header required")
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="nfs4stated", error="invalid_token"`)
				if errors.Is(err, auth.ErrExpiredToken) {
					handlers.Unauthorized(w, "Token expired")
				} else {
					handlers.Unauthorized(w, "Invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin blocks callers without the admin role. Must be used after
// JWTAuth.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil {
				handlers.Unauthorized(w, "Authentication required")
				return
			}

			if !claims.IsAdmin() {
				handlers.Forbidden(w, "Admin access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
