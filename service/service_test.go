package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig disables the listeners so construction and lifecycle can
// be exercised without binding ports or reaching a broker.
func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "vib.db")
	cfg.Metrics.Port = 0
	cfg.Gateway.Addr = ""
	return cfg
}

func TestNewWiresComponentGraph(t *testing.T) {
	svc, err := New(testConfig(t), slog.Default())
	require.NoError(t, err)

	require.NotNil(t, svc.Control())
	assert.Nil(t, svc.gateway)
	assert.Nil(t, svc.metricsServer)
	assert.NotNil(t, svc.router)
	assert.NotNil(t, svc.writer)
	assert.NotNil(t, svc.adapter)
}

func TestNewEnablesOptionalServers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Port = 19102
	cfg.Gateway.Addr = "127.0.0.1:0"

	svc, err := New(cfg, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, svc.metricsServer)
	assert.NotNil(t, svc.gateway)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = ""
	_, err := New(cfg, slog.Default())
	require.Error(t, err)
}

// Start succeeds with the broker down: the connection retries in the
// background, so a deployment can come up before its bus does.
func TestStartStopWithoutBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.NATS.URL = "nats://127.0.0.1:49222"

	svc, err := New(cfg, slog.Default())
	require.NoError(t, err)

	// bounds the KV-mirror probe against the unreachable broker
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	require.Error(t, svc.Start(ctx), "double start must be rejected")

	// drain of an unconnected bus may fail; shutdown still completes
	_ = svc.Stop(2 * time.Second)
	assert.NoError(t, svc.Stop(2*time.Second), "second stop is a no-op")
}
