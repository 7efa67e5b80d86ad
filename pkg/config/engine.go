package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// Engine bundles the lock manager and the state handler built from one
// configuration.
type Engine struct {
	Locks *lock.Manager
	State *state.StateHandler
}

// InitializeEngine opens the configured lock backend and builds the lock
// manager and state handler on top of it. When reg is nil no metrics are
// collected.
//
// The caller owns the engine and must Close it.
func InitializeEngine(ctx context.Context, cfg *Config, reg prometheus.Registerer) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("configuration is nil")
	}

	backend, err := CreateLockBackend(ctx, cfg.Lock)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock backend: %w", err)
	}

	var (
		lockMetrics  *lock.Metrics
		stateMetrics *state.Metrics
	)
	if reg != nil {
		lockMetrics = lock.NewMetrics(reg)
		stateMetrics = state.NewMetrics(reg)
	}

	locks := lock.NewManager(backend, lock.Config{
		BlockingTimeout:   cfg.Lock.BlockingTimeout,
		PollInterval:      cfg.Lock.PollInterval,
		MaxLocksPerObject: cfg.Lock.MaxLocksPerObject,
	}, lockMetrics)

	handler := state.NewStateHandler(StateHandlerConfig(cfg.State), locks, stateMetrics)

	logger.Debug("Engine initialized",
		"lock_backend", cfg.Lock.Backend,
		"distributed", backend.Distributed(),
		"lease_time", cfg.State.LeaseTime,
		"boot_epoch", handler.BootEpoch())

	return &Engine{Locks: locks, State: handler}, nil
}

// StateHandlerConfig converts the file representation of the state section.
func StateHandlerConfig(cfg StateConfig) state.Config {
	return state.Config{
		LeaseTime:            cfg.LeaseTime,
		LeaseGrace:           cfg.LeaseGrace,
		GracePeriod:          cfg.GracePeriod,
		MaxSessionsPerClient: cfg.MaxSessionsPerClient,
		MaxSlots:             cfg.MaxSlots,
		MaxBackSlots:         cfg.MaxBackSlots,
	}
}

// Close disposes every client, then closes the lock manager and its backend.
func (e *Engine) Close(ctx context.Context) error {
	return errors.Join(e.State.Shutdown(ctx), e.Locks.Close())
}
