package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/tabletd/internal/bytesize"
	"github.com/marmos91/tabletd/pkg/recovery"
)

// DefaultRoot is the data root used by GetDefaultConfig.
const DefaultRoot = "/var/lib/tabletd"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.Admin.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	applyBlocksDefaults(&cfg.Blocks, cfg.Storage.Root)
	applyLifecycleDefaults(&cfg.Lifecycle)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
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
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
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

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyStorageDefaults sets storage defaults.
// Root has no default when loading from a file: it must be configured.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.WALSegmentSize == 0 {
		cfg.WALSegmentSize = 8 * bytesize.MiB
	}
}

// applyBlocksDefaults sets block store defaults.
func applyBlocksDefaults(cfg *BlocksConfig, root string) {
	if cfg.Type == "" {
		cfg.Type = "fs"
	}
	cfg.Type = strings.ToLower(cfg.Type)

	if cfg.Type == "badger" && cfg.Badger.Dir == "" && root != "" {
		cfg.Badger.Dir = filepath.Join(root, "blocks-badger")
	}
	if cfg.Type == "s3" && cfg.S3.MaxRetries == 0 {
		cfg.S3.MaxRetries = 3
	}
}

// applyLifecycleDefaults sets lifecycle controller defaults.
func applyLifecycleDefaults(cfg *LifecycleConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RecoveryParallelism == 0 {
		cfg.RecoveryParallelism = recovery.DefaultParallelism
	}
}

// applyGCDefaults sets garbage collection defaults.
func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Root: DefaultRoot,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
