package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfs4state/internal/api/auth"
)

const testSecret = "middleware-test-secret-at-least-32-chars"

func newService(t *testing.T) *auth.JWTService {
	t.Helper()
	svc, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	require.NoError(t, err)
	return svc
}

func token(t *testing.T, svc *auth.JWTService, role string, ttl time.Duration) string {
	t.Helper()
	tok, _, err := svc.GenerateToken("tester", role, ttl)
	require.NoError(t, err)
	return tok
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"lowercase scheme", "bearer abc", "abc", true},
		{"missing", "", "", false},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", false},
		{"no token", "Bearer", "", false},
		{"empty token", "Bearer ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := extractBearerToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTAuth(t *testing.T) {
	svc := newService(t)

	var seen *auth.Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := JWTAuth(svc)(next)

	t.Run("valid token stores claims", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, svc, auth.RoleViewer, time.Hour))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "tester", seen.Subject)
		assert.Equal(t, auth.RoleViewer, seen.Role)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, svc, auth.RoleAdmin, -time.Minute))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Token expired")
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid token")
	})
}

func TestRequireAdmin(t *testing.T) {
	svc := newService(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := JWTAuth(svc)(RequireAdmin()(ok))

	tests := []struct {
		name string
		role string
		want int
	}{
		{"admin", auth.RoleAdmin, http.StatusOK},
		{"viewer", auth.RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, svc, tt.role, time.Hour))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("without JWTAuth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireAdmin()(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
