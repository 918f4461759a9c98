//go:build e2e

package helpers

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
	buildOutput []byte
)

// TabletdBinary returns the path to a tabletd binary. $TABLETD_BINARY wins;
// otherwise the binary is built once per test run into the project root.
func TabletdBinary(t *testing.T) string {
	t.Helper()

	if path := os.Getenv("TABLETD_BINARY"); path != "" {
		return path
	}

	buildOnce.Do(func() {
		root := findProjectRoot()
		builtBinary = filepath.Join(root, "tabletd")
		cmd := exec.Command("go", "build", "-o", builtBinary, "./cmd/tabletd/")
		cmd.Dir = root
		buildOutput, buildErr = cmd.CombinedOutput()
	})
	if buildErr != nil {
		t.Fatalf("Failed to build tabletd: %v\n%s", buildErr, buildOutput)
	}
	return builtBinary
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}
