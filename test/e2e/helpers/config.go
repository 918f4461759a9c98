//go:build e2e

package helpers

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// Instance is one data root with its config file.
type Instance struct {
	Dir        string
	Root       string
	ConfigFile string
	LogFile    string
	AdminPort  int
	MetricPort int
}

// InstanceOptions tweaks the generated config.
type InstanceOptions struct {
	// CrashAfter maps checkpoint names to crash probabilities.
	CrashAfter map[string]float64

	// Metrics enables the Prometheus endpoint.
	Metrics bool
}

// NewInstance creates a data root and writes a config for it.
func NewInstance(t *testing.T, opts InstanceOptions) *Instance {
	t.Helper()

	dir := t.TempDir()
	inst := &Instance{
		Dir:        dir,
		Root:       filepath.Join(dir, "data"),
		ConfigFile: filepath.Join(dir, "config.yaml"),
		LogFile:    filepath.Join(dir, "tabletd.log"),
		AdminPort:  FindFreePort(t),
	}
	if opts.Metrics {
		inst.MetricPort = FindFreePort(t)
	}
	inst.writeConfig(t, opts.CrashAfter)
	return inst
}

// WithFaults returns a copy of the instance whose config crashes at the
// given checkpoints. Both share the data root.
func (i *Instance) WithFaults(t *testing.T, crashAfter map[string]float64) *Instance {
	t.Helper()
	faulty := *i
	faulty.ConfigFile = filepath.Join(i.Dir, "config-faults.yaml")
	faulty.writeConfig(t, crashAfter)
	return &faulty
}

func (i *Instance) writeConfig(t *testing.T, crashAfter map[string]float64) {
	t.Helper()

	cfg := map[string]any{
		"logging": map[string]any{
			"level":  "DEBUG",
			"format": "json",
			"output": i.LogFile,
		},
		"shutdown_timeout": "5s",
		"storage":          map[string]any{"root": i.Root},
		"blocks":           map[string]any{"type": "fs"},
		"admin": map[string]any{
			"enabled": true,
			"port":    i.AdminPort,
		},
		"metrics": map[string]any{
			"enabled": i.MetricPort != 0,
			"port":    i.MetricPort,
		},
	}
	if len(crashAfter) > 0 {
		cfg["faults"] = map[string]any{"crash_after": crashAfter}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("Failed to encode config: %v", err)
	}
	if err := os.WriteFile(i.ConfigFile, data, 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}
