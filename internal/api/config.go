package api

import (
	"fmt"
	"os"
	"time"

	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/logger"
)

// EnvJWTSecret is the environment variable holding the admin API signing
// secret. It takes precedence over the config file.
const EnvJWTSecret = "NFS4STATE_API_JWT_SECRET"

// APIConfig configures the admin HTTP API. The API is always served.
type APIConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWT configures bearer token authentication of the /api/v1 routes.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures JWT token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	// When empty the /api/v1 routes are served without authentication.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// TokenDuration is the default lifetime of minted tokens.
	// Default: 1h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// ApplyDefaults fills in zero values with defaults.
func (c *APIConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.JWT.TokenDuration == 0 {
		c.JWT.TokenDuration = time.Hour
	}
}

// Validate checks the settings the struct tags cannot express.
func (c *APIConfig) Validate() error {
	if secret := c.JWT.Secret; secret != "" && len(secret) < auth.MinSecretLength {
		return fmt.Errorf("jwt.secret must be at least %d characters, got %d", auth.MinSecretLength, len(secret))
	}
	return nil
}

// GetJWTSecret returns the JWT secret, preferring the environment variable.
// Logs a warning if the environment variable overrides a config file value.
func (c *APIConfig) GetJWTSecret() string {
	envSecret := os.Getenv(EnvJWTSecret)
	if envSecret != "" {
		if c.JWT.Secret != "" && c.JWT.Secret != envSecret {
			logger.Warn("JWT secret from environment variable overrides config file value",
				"env_var", EnvJWTSecret)
		}
		return envSecret
	}
	return c.JWT.Secret
}

// HasJWTSecret returns whether a JWT secret is configured.
func (c *APIConfig) HasJWTSecret() bool {
	return c.GetJWTSecret() != ""
}

// NewJWTService builds the token service from the configured secret.
func (c *APIConfig) NewJWTService() (*auth.JWTService, error) {
	return auth.NewJWTService(auth.JWTConfig{
		Secret:        c.GetJWTSecret(),
		TokenDuration: c.JWT.TokenDuration,
	})
}
