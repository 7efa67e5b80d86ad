package postgres

import (
	"fmt"
	"time"
)

// Config holds the connection settings of the postgres lock backend.
type Config struct {
	// URL, when set, is used verbatim as the connection string and the
	// discrete connection parameters below are ignored.
	URL string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	MaxConns       int32         // Default: 10
	ConnectTimeout time.Duration // Default: 5s

	// AutoMigrate applies pending schema migrations on Open.
	AutoMigrate bool
}

// ApplyDefaults sets default values for unspecified configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxConns < 2 {
		// One connection is pinned by every held object mutex; the data
		// queries need at least one more.
		return fmt.Errorf("max_conns must be at least 2")
	}
	if c.URL != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
		"prefer":      true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid ssl_mode: %s (must be one of: disable, require, verify-ca, verify-full, prefer)", c.SSLMode)
	}
	return nil
}

// ConnectionString builds a PostgreSQL connection string from the config.
func (c *Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host,
		c.Port,
		c.Database,
		c.User,
		c.Password,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}
