package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/nfs4state/internal/bytesize"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// minLeaseTime is the shortest lease accepted from configuration; the
// sweeper ticks every half lease.
const minLeaseTime = time.Second

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
	applyStateDefaults(&cfg.State)
	applyLockDefaults(&cfg.Lock)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets the metrics port when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStateDefaults fills the state section with the handler's defaults so
// that `config show` prints the effective values.
func applyStateDefaults(cfg *StateConfig) {
	if cfg.LeaseTime == 0 {
		cfg.LeaseTime = state.DefaultLeaseTime
	}
	if cfg.LeaseGrace == 0 {
		cfg.LeaseGrace = state.DefaultLeaseGrace
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = state.DefaultGracePeriod
	}
	if cfg.MaxSessionsPerClient == 0 {
		cfg.MaxSessionsPerClient = state.DefaultMaxSessionsPerClient
	}
	if cfg.MaxSlots == 0 {
		cfg.MaxSlots = state.DefaultMaxSlots
	}
	if cfg.MaxBackSlots == 0 {
		cfg.MaxBackSlots = state.DefaultMaxBackSlots
	}
}

// applyLockDefaults sets lock manager and backend defaults.
func applyLockDefaults(cfg *LockConfig) {
	if cfg.Backend == "" {
		cfg.Backend = LockBackendMemory
	}
	cfg.Backend = strings.ToLower(cfg.Backend)

	if cfg.BlockingTimeout == 0 {
		cfg.BlockingTimeout = 60 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = lock.DefaultPollInterval
	}
	if cfg.MaxLocksPerObject == 0 {
		cfg.MaxLocksPerObject = 1000
	}

	if cfg.Backend == LockBackendBadger && cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(GetDefaultStateDir(), "locks")
	}
	if cfg.Badger.IndexCacheSize == 0 {
		cfg.Badger.IndexCacheSize = 64 * bytesize.MiB
	}

	if cfg.Backend == LockBackendPostgres {
		pg := &cfg.Postgres
		if pg.Port == 0 {
			pg.Port = 5432
		}
		if pg.SSLMode == "" {
			pg.SSLMode = "prefer"
		}
		if pg.MaxConns == 0 {
			pg.MaxConns = 10
		}
		if pg.ConnectTimeout == 0 {
			pg.ConnectTimeout = 5 * time.Second
		}
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
