package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// Server is the admin HTTP API server.
//
// The server supports graceful shutdown; Stop is idempotent and safe to
// call concurrently with Start.
type Server struct {
	server       *http.Server
	config       APIConfig
	jwtService   *auth.JWTService
	shutdownOnce sync.Once
}

// NewServer creates the API server in a stopped state. Authentication is
// enabled when a JWT secret is configured (config or NFS4STATE_API_JWT_SECRET).
// gatherer, when non-nil, is exposed on /metrics.
func NewServer(config APIConfig, handler *state.StateHandler, gatherer prometheus.Gatherer) (*Server, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var jwtService *auth.JWTService
	if config.HasJWTSecret() {
		svc, err := config.NewJWTService()
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT service: %w", err)
		}
		jwtService = svc
	} else {
		logger.Warn("API authentication disabled: no JWT secret configured", "env_var", EnvJWTSecret)
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewRouter(handler, jwtService, gatherer),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config:     config,
		jwtService: jwtService,
	}, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// AuthEnabled reports whether /api/v1 requires a bearer token.
func (s *Server) AuthEnabled() bool {
	return s.jwtService != nil
}

// Start serves the API and blocks until ctx is cancelled or the listener
// fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", ln.Addr().String(), "auth", s.AuthEnabled())

		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// ctx is already cancelled; shut down on a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
