package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Common errors for JWT operations.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidRole         = errors.New("invalid role")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = fmt.Errorf("JWT secret must be at least %d characters", MinSecretLength)
)

// JWTConfig holds configuration for JWT token generation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "nfs4stated"
	Issuer string

	// TokenDuration is the default token lifetime. Default: 1 hour.
	TokenDuration time.Duration
}

// JWTService mints and validates admin API tokens.
type JWTService struct {
	config JWTConfig
}

// NewJWTService creates a new JWT service with the given configuration.
func NewJWTService(config JWTConfig) (*JWTService, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "nfs4stated"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = time.Hour
	}
	return &JWTService{config: config}, nil
}

// GenerateToken mints a token for subject with role. A zero ttl uses the
// configured TokenDuration.
func (s *JWTService) GenerateToken(subject, role string, ttl time.Duration) (string, time.Time, error) {
	if role != RoleAdmin && role != RoleViewer {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttl == 0 {
		ttl = s.config.TokenDuration
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, ErrTokenSigningFailed
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin && claims.Role != RoleViewer {
		return nil, ErrInvalidRole
	}
	return claims, nil
}

// TokenDuration returns the configured default token lifetime.
func (s *JWTService) TokenDuration() time.Duration {
	return s.config.TokenDuration
}

// PeekClaims decodes the claims of a token without verifying its signature.
// Clients use it to learn the subject, role and expiry of a token they were
// handed; servers must use ValidateToken.
func PeekClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
