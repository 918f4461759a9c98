//go:build e2e

package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// ServerProcess manages a tabletd server subprocess for E2E testing.
type ServerProcess struct {
	inst    *Instance
	cmd     *exec.Cmd
	out     *os.File
	exited  chan struct{}
	waitErr error
}

// APIResponse is the envelope of every admin API response.
type APIResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// FindFreePort finds an available TCP port by binding to :0 and reading the assigned port.
func FindFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// StartServer starts "tabletd start" for the instance and waits until
// /readyz reports ready, which happens once startup recovery is done.
func (i *Instance) StartServer(t *testing.T) *ServerProcess {
	t.Helper()

	out, err := os.OpenFile(i.LogFile+".stdout", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("Failed to create output file: %v", err)
	}

	cmd := exec.Command(TabletdBinary(t), "start", "--config", i.ConfigFile)
	cmd.Stdout, cmd.Stderr = out, out
	if err := cmd.Start(); err != nil {
		_ = out.Close()
		t.Fatalf("Failed to start tabletd: %v", err)
	}

	sp := &ServerProcess{inst: i, cmd: cmd, out: out, exited: make(chan struct{})}
	go func() {
		sp.waitErr = cmd.Wait()
		close(sp.exited)
	}()
	t.Cleanup(sp.ForceKill)

	if err := sp.WaitReady(10 * time.Second); err != nil {
		sp.dumpLogs(t)
		t.Fatalf("Server failed to become ready: %v", err)
	}
	return sp
}

// WaitReady polls /readyz until it answers 200 or timeout passes.
func (sp *ServerProcess) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		select {
		case <-sp.exited:
			return fmt.Errorf("server exited: %v", sp.waitErr)
		default:
		}

		status, _, err := sp.Get("/readyz")
		if err == nil && status == http.StatusOK {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("readyz returned %d", status)
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v: %w", timeout, lastErr)
}

// Get performs a GET against the admin API and decodes the envelope.
func (sp *ServerProcess) Get(path string) (int, *APIResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d%s", sp.inst.AdminPort, path))
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, &body, nil
}

// Metrics returns the Prometheus exposition of the server.
func (sp *ServerProcess) Metrics() (string, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", sp.inst.MetricPort))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

// StopGracefully sends sig and waits for a clean exit.
func (sp *ServerProcess) StopGracefully(sig syscall.Signal) error {
	if err := sp.cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send %v: %w", sig, err)
	}
	select {
	case <-sp.exited:
		return sp.waitErr
	case <-time.After(10 * time.Second):
		return fmt.Errorf("process did not exit within 10s")
	}
}

// ForceKill terminates the server process if it is still running.
func (sp *ServerProcess) ForceKill() {
	select {
	case <-sp.exited:
	default:
		_ = sp.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-sp.exited:
		case <-time.After(2 * time.Second):
			_ = sp.cmd.Process.Kill()
			<-sp.exited
		}
	}
	if sp.out != nil {
		_ = sp.out.Close()
		sp.out = nil
	}
}

func (sp *ServerProcess) dumpLogs(t *testing.T) {
	t.Helper()
	for _, path := range []string{sp.inst.LogFile, sp.inst.LogFile + ".stdout"} {
		if content, err := os.ReadFile(path); err == nil {
			t.Logf("=== %s ===\n%s", path, content)
		}
	}
}
