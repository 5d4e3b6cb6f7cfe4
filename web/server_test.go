package web

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mberenty7/tripo-tools/config"
	"github.com/mberenty7/tripo-tools/internal/metrics"
)

func TestServerLifecycle(t *testing.T) {
	m := newTestManager(t, "http://unused.invalid")
	h := NewHandler(m, nil, zap.NewNop())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("tripo_test", registry, zap.NewNop())

	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second

	srv := NewServer(cfg, h, collector, registry, zap.NewNop())
	require.NoError(t, srv.Start())
	require.Error(t, srv.Start(), "double start must fail")

	base := "http://" + srv.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The health probe above is visible on /metrics via the middleware.
	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()), "shutdown is idempotent")

	_, err = http.Get(base + "/healthz")
	assert.Error(t, err, "server must stop accepting connections")
}
