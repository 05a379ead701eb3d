package ingress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/natsclient"
)

type recordingHandler struct {
	mu   sync.Mutex
	envs []Envelope
	seen chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, 64)}
}

func (h *recordingHandler) Handle(_ context.Context, env Envelope) {
	h.mu.Lock()
	h.envs = append(h.envs, env)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

func (h *recordingHandler) received() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Envelope(nil), h.envs...)
}

func (h *recordingHandler) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for envelope %d of %d", i+1, n)
		}
	}
}

func newTestAdapter(t *testing.T, h Handler, capacity int) *Adapter {
	t.Helper()
	bus, err := natsclient.NewClient("nats://localhost:4222")
	require.NoError(t, err)

	a, err := NewAdapter(AdapterDeps{
		Bus:           bus,
		Handler:       h,
		QueueCapacity: capacity,
		DrainTimeout:  time.Second,
	})
	require.NoError(t, err)
	return a
}

func TestNewAdapterValidatesDeps(t *testing.T) {
	_, err := NewAdapter(AdapterDeps{})
	assert.Error(t, err)
}

func TestDispatchPreservesArrivalOrder(t *testing.T) {
	h := newRecordingHandler()
	a := newTestAdapter(t, h, 16)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	for i := byte(0); i < 5; i++ {
		a.enqueue(Envelope{Topic: "daq.tag1", Payload: []byte{i}, RecvTime: time.Now()})
	}

	h.waitFor(t, 5)
	envs := h.received()
	require.Len(t, envs, 5)
	for i, env := range envs {
		assert.Equal(t, []byte{byte(i)}, env.Payload)
		assert.Equal(t, "daq.tag1", env.Topic)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	h := newRecordingHandler()
	a := newTestAdapter(t, h, 4)

	// Not started: nothing consumes, so writes 4..5 evict 0..1.
	for i := byte(0); i < 6; i++ {
		a.enqueue(Envelope{Payload: []byte{i}})
	}

	require.NoError(t, a.Start(context.Background()))
	h.waitFor(t, 4)
	require.NoError(t, a.Stop())

	envs := h.received()
	require.Len(t, envs, 4)
	assert.Equal(t, []byte{2}, envs[0].Payload)
	assert.Equal(t, []byte{5}, envs[3].Payload)
}

func TestStopDrainsQueue(t *testing.T) {
	h := newRecordingHandler()
	a := newTestAdapter(t, h, 16)

	for i := byte(0); i < 5; i++ {
		a.enqueue(Envelope{Payload: []byte{i}})
	}

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop())

	assert.Len(t, h.received(), 5)
}

func TestStopBeforeStart(t *testing.T) {
	a := newTestAdapter(t, newRecordingHandler(), 4)
	assert.NoError(t, a.Stop())
}

func TestDoubleStart(t *testing.T) {
	a := newTestAdapter(t, newRecordingHandler(), 4)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop()

	assert.Error(t, a.Start(context.Background()))
}
