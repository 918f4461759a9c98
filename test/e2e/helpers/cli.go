//go:build e2e

package helpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

// CLIResult is the outcome of one tabletd invocation.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunCLI runs tabletd with the instance config and returns its result.
// A non-zero exit is not a test failure; callers assert on ExitCode.
func (i *Instance) RunCLI(t *testing.T, args ...string) CLIResult {
	t.Helper()

	full := append([]string{"--config", i.ConfigFile, "--no-color"}, args...)
	cmd := exec.Command(TabletdBinary(t), full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := CLIResult{}
	err := cmd.Run()
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("Failed to run tabletd %s: %v", strings.Join(args, " "), err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res
}

// MustRunCLI runs tabletd and fails the test on a non-zero exit.
func (i *Instance) MustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	res := i.RunCLI(t, args...)
	if res.ExitCode != 0 {
		t.Fatalf("tabletd %s exited %d\nstdout: %s\nstderr: %s",
			strings.Join(args, " "), res.ExitCode, res.Stdout, res.Stderr)
	}
	return res.Stdout
}

// TabletSummary mirrors one entry of "tablet list -o json".
type TabletSummary struct {
	TabletID           string `json:"tablet_id"`
	DataState          string `json:"data_state"`
	PendingTargetState string `json:"pending_target_state"`
	BlockRefs          int    `json:"block_refs"`
}

// ListTablets runs "tablet list -o json". It takes the data-root lock, so
// startup recovery runs first.
func (i *Instance) ListTablets(t *testing.T) []TabletSummary {
	t.Helper()
	out := i.MustRunCLI(t, "-o", "json", "tablet", "list")
	var list []TabletSummary
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("Failed to decode tablet list: %v\n%s", err, out)
	}
	return list
}
