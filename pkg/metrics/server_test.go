package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	Reset()
	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())
	assert.Nil(t, NewLifecycleMetrics())
	assert.Nil(t, NewRecoveryMetrics())
	assert.Nil(t, NewBlockMetrics("memory"))

	reg := InitRegistry()
	t.Cleanup(Reset)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())
}

func TestServer_ServesRegistry(t *testing.T) {
	reg := InitRegistry()
	t.Cleanup(Reset)

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "tabletd_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	srv := NewServer(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	port := srv.Addr()[strings.LastIndex(srv.Addr(), ":"):]

	resp, err := http.Get("http://127.0.0.1" + port + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "tabletd_test_total 1")

	cancel()
	require.NoError(t, <-done)
}
