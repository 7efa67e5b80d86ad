package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/marmos91/nfs4state/internal/api"
	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/internal/telemetry"
	"github.com/marmos91/nfs4state/pkg/config"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nfs4stated server",
	Long: `Start the nfs4stated server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

On start the server recovers the locks left in a persistent single-node
backend and opens a grace period during which their owners may reclaim them.

Examples:
  # Start in background (default)
  nfs4stated start

  # Start in foreground
  nfs4stated start --foreground

  # Start with custom config file
  nfs4stated start --config /etc/nfs4state/config.yaml

  # Start with environment variable overrides
  NFS4STATE_LOGGING_LEVEL=DEBUG nfs4stated start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nfs4state/nfs4stated.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/nfs4state/nfs4stated.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "nfs4stated",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nfs4stated",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
		Tags:           map[string]string{"lock_backend": cfg.Lock.Backend},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	fmt.Println("nfs4stated - NFSv4 state server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	}

	// A nil registry disables collection altogether.
	var (
		registerer prometheus.Registerer
		gatherer   prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer, gatherer = reg, reg
	}

	engine, err := config.InitializeEngine(ctx, cfg, registerer)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer closeCancel()
		if err := engine.Close(closeCtx); err != nil {
			logger.Error("Engine shutdown error", "error", err)
		} else {
			logger.Info("Engine stopped")
		}
	}()

	recovered, err := engine.State.RecoverLocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover locks: %w", err)
	}
	if recovered > 0 {
		logger.Info("Locks recovered, grace period started",
			"locks", recovered,
			"grace_period", cfg.State.GracePeriod)
	}

	engine.State.StartLeaseSweeper(ctx)
	defer engine.State.StopLeaseSweeper()

	apiServer, err := api.NewServer(cfg.API, engine.State, gatherer)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	if err := config.Watch(GetConfigFile(), func(updated *config.Config) {
		if updated.Logging.Level != cfg.Logging.Level {
			logger.SetLevel(updated.Logging.Level)
			logger.Info("Log level changed", "level", updated.Logging.Level)
			cfg.Logging.Level = updated.Logging.Level
		}
	}); err != nil {
		logger.Warn("Configuration watch disabled", "error", err)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 2)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()
	if gatherer != nil {
		metricsServer := api.NewMetricsServer(cfg.Metrics.Port, gatherer)
		go func() {
			serverDone <- metricsServer.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.",
		"api_port", apiServer.Port(),
		"lock_backend", cfg.Lock.Backend,
		"boot_epoch", engine.State.BootEpoch())

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		cancel()
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
