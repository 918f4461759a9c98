package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/tabletd/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

storage:
  root: "`+yamlSafePath(root)+`"
  wal_segment_size: 16Mi

admin:
  port: 8071
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Admin.Port != 8071 {
		t.Errorf("Expected admin port 8071, got %d", cfg.Admin.Port)
	}
	if cfg.Storage.WALSegmentSize != 16*bytesize.MiB {
		t.Errorf("Expected WAL segment size 16MiB, got %v", cfg.Storage.WALSegmentSize)
	}
	if cfg.Blocks.Type != "fs" {
		t.Errorf("Expected default block store 'fs', got %q", cfg.Blocks.Type)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Storage.Root != DefaultRoot {
		t.Errorf("Expected default root %q, got %q", DefaultRoot, cfg.Storage.Root)
	}
	if cfg.Admin.Port != 8070 {
		t.Errorf("Expected default admin port 8070, got %d", cfg.Admin.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_MissingRoot(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: DEBUG
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error without storage.root")
	}
}

func TestLoad_TOML(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfig(t, "config.toml", `
shutdown_timeout = "5s"

[logging]
level = "WARN"
format = "json"

[storage]
root = "`+yamlSafePath(root)+`"

[blocks]
type = "badger"

[gc]
enabled = true
interval = "10m"
dry_run = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %v", cfg.ShutdownTimeout)
	}
	if want := filepath.Join(root, "blocks-badger"); cfg.Blocks.Badger.Dir != want {
		t.Errorf("Expected badger dir %q, got %q", want, cfg.Blocks.Badger.Dir)
	}
	if !cfg.GC.Enabled || !cfg.GC.DryRun || cfg.GC.Interval != 10*time.Minute {
		t.Errorf("Unexpected gc config: %+v", cfg.GC)
	}
}

func TestLoad_Faults(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
storage:
  root: "`+yamlSafePath(root)+`"
faults:
  crash_after:
    wal_deleted: 1.0
    blocks_deleted: 0.25
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.Faults.CrashAfter["wal_deleted"]; got != 1.0 {
		t.Errorf("Expected wal_deleted probability 1.0, got %v", got)
	}
	if got := cfg.Faults.CrashAfter["blocks_deleted"]; got != 0.25 {
		t.Errorf("Expected blocks_deleted probability 0.25, got %v", got)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Lifecycle.RecoveryParallelism != 8 {
		t.Errorf("Expected default recovery parallelism 8, got %d", cfg.Lifecycle.RecoveryParallelism)
	}
	if cfg.Lifecycle.RequestTimeout != 30*time.Second {
		t.Errorf("Expected default request timeout 30s, got %v", cfg.Lifecycle.RequestTimeout)
	}
	if cfg.GC.Interval != time.Hour {
		t.Errorf("Expected default gc interval 1h, got %v", cfg.GC.Interval)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "tabletd" {
		t.Errorf("Expected directory name 'tabletd', got %q", filepath.Base(dir))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("TABLETD_LOGGING_LEVEL", "ERROR")
	t.Setenv("TABLETD_ADMIN_PORT", "9191")
	t.Setenv("TABLETD_LIFECYCLE_WAIT_FOR_LOCK", "true")

	root := t.TempDir()
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

storage:
  root: "`+yamlSafePath(root)+`"

admin:
  port: 8070

lifecycle:
  wait_for_lock: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Admin.Port != 9191 {
		t.Errorf("Expected port 9191 from env var, got %d", cfg.Admin.Port)
	}
	if !cfg.Lifecycle.WaitForLock {
		t.Error("Expected wait_for_lock true from env var")
	}
}
