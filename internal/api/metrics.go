package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/nfs4state/internal/logger"
)

// MetricsServer exposes a Prometheus registry on its own port, so scrapes
// stay off the authenticated API.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics server for gatherer on port.
func NewMetricsServer(port int, gatherer prometheus.Gatherer) *MetricsServer {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: promLogger{},
	}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves metrics until ctx is cancelled.
func (m *MetricsServer) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening", "addr", m.server.Addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// promLogger routes promhttp errors to the internal logger.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	logger.Warn("Metrics handler error", "error", fmt.Sprint(v...))
}
