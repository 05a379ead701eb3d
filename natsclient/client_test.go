package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}

func TestReconnectDelaySchedule(t *testing.T) {
	assert.Equal(t, time.Second, reconnectDelay(0))
	assert.Equal(t, time.Second, reconnectDelay(1))
	assert.Equal(t, 2*time.Second, reconnectDelay(2))
	assert.Equal(t, 4*time.Second, reconnectDelay(3))
	assert.Equal(t, 16*time.Second, reconnectDelay(5))
	// Capped at thirty seconds from the sixth attempt on.
	assert.Equal(t, 30*time.Second, reconnectDelay(6))
	assert.Equal(t, 30*time.Second, reconnectDelay(100))
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
}

func TestNewClientOptions(t *testing.T) {
	c, err := NewClient("nats://localhost:4222",
		WithName("vibstreams-test"),
		WithCredentials("user", "pass"),
		WithTimeout(time.Second),
		WithDrainTimeout(2*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, "vibstreams-test", c.clientName)
	assert.Equal(t, "user", c.username)
	assert.Equal(t, time.Second, c.timeout)
	assert.Equal(t, 2*time.Second, c.drainTimeout)
}

func TestSubscribeNotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Subscribe(context.Background(), "daq.tag1", func(context.Context, []byte) {})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestPublishNotConnected(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = c.Publish(context.Background(), "daq.tag1", []byte("payload"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCloseIdempotent(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestClosedClientRejectsOperations(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))

	assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.Subscribe(context.Background(), "x", nil), ErrClosed)
}

func TestUnsubscribeUnknownSubject(t *testing.T) {
	c, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, c.Unsubscribe("never.subscribed"))
}
