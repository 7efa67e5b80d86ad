package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the configuration: struct tags first, then the rules that
// span several fields.
func Validate(cfg *Config) error {
	if err := getValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.API.Port {
		return fmt.Errorf("metrics.port and api.port must differ (both %d)", cfg.API.Port)
	}
	if cfg.State.LeaseTime > 0 && cfg.State.LeaseTime < minLeaseTime {
		return fmt.Errorf("state.lease_time must be at least %s, got %s", minLeaseTime, cfg.State.LeaseTime)
	}
	if err := cfg.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return validateLockBackend(&cfg.Lock)
}

// validateLockBackend checks the settings the selected backend needs.
func validateLockBackend(cfg *LockConfig) error {
	switch cfg.Backend {
	case LockBackendBadger:
		if cfg.Badger.Path == "" {
			return errors.New("lock.badger.path is required for the badger backend")
		}
	case LockBackendPostgres:
		pg := postgresConfig(cfg.Postgres)
		if err := pg.Validate(); err != nil {
			return fmt.Errorf("lock.postgres: %w", err)
		}
	}
	return nil
}

// formatValidationErrors renders validator errors as "Field: failed 'tag'"
// lines so the failing rule stays visible to the user.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Errorf("%s: failed '%s=%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Errorf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return errors.Join(msgs...)
}
