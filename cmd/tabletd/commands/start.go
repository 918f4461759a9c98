package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/internal/telemetry"
	"github.com/marmos91/tabletd/pkg/config"
	"github.com/marmos91/tabletd/pkg/metrics"
	"github.com/marmos91/tabletd/pkg/tserver"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/tabletd/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tablet server",
	Long: `Start the tablet server in the foreground.

The server locks its data root, finishes any transition a previous run left
pending, then serves lifecycle requests until SIGINT or SIGTERM. Run it under
a process supervisor (systemd, Kubernetes) for background operation.

Examples:
  # Start with the default config
  tabletd start

  # Start with a custom config file
  tabletd start --config /etc/tabletd/config.yaml

  # Override settings from the environment
  TABLETD_LOGGING_LEVEL=DEBUG tabletd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the server PID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingCfg, profilingCfg := telemetrySettings(cfg.Telemetry, Version)
	telemetryShutdown, err := telemetry.Init(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(cmdutil.Flags.ConfigFile),
		"level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	srv, err := tserver.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Failed to close data root", logger.Err(err))
		}
	}()

	if pidFile != "" {
		if err := os.WriteFile(pidFile, fmt.Appendf(nil, "%d", os.Getpid()), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	if cfg.Admin.IsEnabled() {
		logger.Info("Admin API enabled", "port", cfg.Admin.Port)
	}

	if err := srv.Serve(ctx); err != nil {
		logger.Error("Server error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// telemetrySettings derives the tracer and profiler settings of a server
// built at version from the telemetry config section.
func telemetrySettings(cfg config.TelemetryConfig, version string) (telemetry.Config, telemetry.ProfilingConfig) {
	tracing := telemetry.Config{
		Enabled:        cfg.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Endpoint,
		Insecure:       cfg.Insecure,
		SampleRate:     cfg.SampleRate,
	}
	profiling := telemetry.ProfilingConfig{
		Enabled:        cfg.Profiling.Enabled,
		ServiceName:    telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Profiling.Endpoint,
		ProfileTypes:   cfg.Profiling.ProfileTypes,
	}
	return tracing, profiling
}
