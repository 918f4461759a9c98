package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/tabletd/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Admin(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Admin.Port != 8070 {
		t.Errorf("Expected default admin port 8070, got %d", cfg.Admin.Port)
	}
	if cfg.Admin.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.Admin.ReadTimeout)
	}
	if cfg.Admin.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.Admin.IdleTimeout)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_Blocks(t *testing.T) {
	cfg := &Config{
		Storage: StorageConfig{Root: "/srv/tabletd"},
		Blocks:  BlocksConfig{Type: "BADGER"},
	}
	ApplyDefaults(cfg)

	if cfg.Blocks.Type != "badger" {
		t.Errorf("Expected block type normalized to 'badger', got %q", cfg.Blocks.Type)
	}
	if want := filepath.Join("/srv/tabletd", "blocks-badger"); cfg.Blocks.Badger.Dir != want {
		t.Errorf("Expected badger dir %q, got %q", want, cfg.Blocks.Badger.Dir)
	}
	if cfg.Storage.WALSegmentSize != 8*bytesize.MiB {
		t.Errorf("Expected default WAL segment size 8MiB, got %v", cfg.Storage.WALSegmentSize)
	}

	s3 := &Config{Blocks: BlocksConfig{Type: "s3"}}
	ApplyDefaults(s3)
	if s3.Blocks.S3.MaxRetries != 3 {
		t.Errorf("Expected default s3 max retries 3, got %d", s3.Blocks.S3.MaxRetries)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/tabletd.log",
		},
		ShutdownTimeout: 5 * time.Second,
		Lifecycle: LifecycleConfig{
			RequestTimeout:      time.Second,
			RecoveryParallelism: 2,
		},
		GC: GCConfig{Interval: time.Minute},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "/var/log/tabletd.log" {
		t.Errorf("Expected explicit output preserved, got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Lifecycle.RecoveryParallelism != 2 {
		t.Errorf("Expected explicit recovery parallelism preserved, got %d", cfg.Lifecycle.RecoveryParallelism)
	}
	if cfg.Lifecycle.RequestTimeout != time.Second {
		t.Errorf("Expected explicit request timeout preserved, got %v", cfg.Lifecycle.RequestTimeout)
	}
	if cfg.GC.Interval != time.Minute {
		t.Errorf("Expected explicit gc interval preserved, got %v", cfg.GC.Interval)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}
