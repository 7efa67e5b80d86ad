package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/nfs4state/internal/api"
	"github.com/marmos91/nfs4state/internal/bytesize"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "NFS4STATE"

// Config represents the nfs4stated configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NFS4STATE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the admin API server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// State tunes leases, sessions and the grace period
	State StateConfig `mapstructure:"state" yaml:"state"`

	// Lock selects and tunes the byte-range lock backend
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`
}

// StateConfig tunes the NFSv4 state handler.
type StateConfig struct {
	// LeaseTime is the lease duration handed to clients.
	// Default: 90s
	LeaseTime time.Duration `mapstructure:"lease_time" validate:"gte=0" yaml:"lease_time"`

	// LeaseGrace is the slack past the lease before a client is reaped.
	// A negative value disables the slack.
	// Default: 15s
	LeaseGrace time.Duration `mapstructure:"lease_grace" yaml:"lease_grace"`

	// GracePeriod is the reclaim window after a restart. Zero disables it.
	// Default: 90s
	GracePeriod time.Duration `mapstructure:"grace_period" validate:"gte=0" yaml:"grace_period"`

	// MaxSessionsPerClient caps the sessions a client may hold.
	// Default: 1
	MaxSessionsPerClient int `mapstructure:"max_sessions_per_client" validate:"gte=0" yaml:"max_sessions_per_client"`

	// MaxSlots caps the fore channel slot table.
	// Default: 64
	MaxSlots uint32 `mapstructure:"max_slots" validate:"lte=1024" yaml:"max_slots"`

	// MaxBackSlots caps the back channel slot table.
	// Default: 8
	MaxBackSlots uint32 `mapstructure:"max_back_slots" validate:"lte=1024" yaml:"max_back_slots"`
}

// Lock backend names.
const (
	LockBackendMemory   = "memory"
	LockBackendBadger   = "badger"
	LockBackendPostgres = "postgres"
)

// LockConfig contains lock manager configuration.
type LockConfig struct {
	// Backend selects where locks live: memory, badger or postgres.
	// Default: memory
	Backend string `mapstructure:"backend" validate:"required,oneof=memory badger postgres" yaml:"backend"`

	// BlockingTimeout bounds blocking lock requests (READW/WRITEW).
	// Default: 60s
	BlockingTimeout time.Duration `mapstructure:"blocking_timeout" validate:"gte=0" yaml:"blocking_timeout"`

	// PollInterval is how often a blocked waiter re-checks a distributed backend.
	// Default: 500ms
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gte=0" yaml:"poll_interval"`

	// MaxLocksPerObject caps the lock entries of one object. Zero is unlimited.
	// Default: 1000
	MaxLocksPerObject int `mapstructure:"max_locks_per_object" validate:"gte=0" yaml:"max_locks_per_object"`

	// Badger configures the persistent single-node backend.
	Badger BadgerLockConfig `mapstructure:"badger" yaml:"badger"`

	// Postgres configures the distributed backend.
	Postgres PostgresLockConfig `mapstructure:"postgres" yaml:"postgres"`
}

// BadgerLockConfig configures the badger lock backend.
type BadgerLockConfig struct {
	// Path is the database directory
	Path string `mapstructure:"path" yaml:"path"`

	// IndexCacheSize bounds badger's in-memory index cache.
	// Supports human-readable formats: "64Mi", "1GB"
	// Default: 64Mi
	IndexCacheSize bytesize.ByteSize `mapstructure:"index_cache_size" yaml:"index_cache_size,omitempty"`
}

// PostgresLockConfig configures the postgres lock backend.
type PostgresLockConfig struct {
	// URL, when set, is used verbatim as the connection string.
	URL string `mapstructure:"url" yaml:"url,omitempty"`

	Host     string `mapstructure:"host" yaml:"host,omitempty"`
	Port     int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port,omitempty"`
	Database string `mapstructure:"database" yaml:"database,omitempty"`
	User     string `mapstructure:"user" yaml:"user,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// SSLMode is one of disable, require, verify-ca, verify-full, prefer.
	SSLMode string `mapstructure:"sslmode" validate:"omitempty,oneof=disable require verify-ca verify-full prefer" yaml:"sslmode,omitempty"`

	// MaxConns is the pool size. Every held object mutex pins one connection.
	// Default: 10
	MaxConns int32 `mapstructure:"max_conns" validate:"omitempty,min=2" yaml:"max_conns,omitempty"`

	// ConnectTimeout bounds establishing a connection.
	// Default: 5s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`

	// AutoMigrate applies pending schema migrations at startup.
	AutoMigrate bool `mapstructure:"auto_migrate" yaml:"auto_migrate"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath uses the default location. A missing file is not an
// error: defaults (plus environment overrides) are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}
	return decode(v)
}

// decode unmarshals v, applies defaults and validates the result.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  nfs4stated init\n\n"+
				"Or specify a custom config file:\n"+
				"  nfs4stated <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  nfs4stated init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry the JWT secret and database password.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: NFS4STATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(GetConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every leaf key of t with viper so that environment
// overrides apply even when the key is absent from the config file.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvKeys(v, f.Type, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize, so
// config files can use sizes like "64Mi" or "100MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
