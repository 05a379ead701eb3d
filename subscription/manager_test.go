package subscription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
)

// collector records processed frame indices.
type collector struct {
	mu      sync.Mutex
	indices []uint32
	seen    chan uint32
}

func newCollector() *collector {
	return &collector{seen: make(chan uint32, 64)}
}

func (c *collector) Process(_ context.Context, f *frame.Frame) error {
	c.mu.Lock()
	c.indices = append(c.indices, f.FrameIndex)
	c.mu.Unlock()
	c.seen <- f.FrameIndex
	return nil
}

func (c *collector) collected() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint32(nil), c.indices...)
}

func (c *collector) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d of %d", i+1, n)
		}
	}
}

func indexedFrame(i uint32) *frame.Frame {
	return &frame.Frame{FrameIndex: i, SampleRate: 64, MainChannels: 1, SamplesPerChannel: 4}
}

func TestDeliverPreservesOrder(t *testing.T) {
	m := NewManager(ManagerDeps{QueueCapacity: 16})
	defer m.Stop(time.Second)

	c := newCollector()
	id, err := m.Subscribe(context.Background(), feature.Trend, "motor1", 0,
		func() Processor { return c })
	require.NoError(t, err)
	require.NotEmpty(t, id)

	for i := uint32(0); i < 5; i++ {
		m.Deliver(feature.Trend, "motor1", indexedFrame(i))
		c.waitFor(t, 1)
	}

	assert.Equal(t, []uint32{0, 1, 2, 3, 4}, c.collected())
}

func TestDeliverDropsOldestOnOverflow(t *testing.T) {
	m := NewManager(ManagerDeps{QueueCapacity: 4})
	defer m.Stop(time.Second)

	gate := make(chan struct{})
	entered := make(chan struct{}, 16)
	c := newCollector()

	id, err := m.Subscribe(context.Background(), feature.FFT, "motor1", 0,
		func() Processor {
			return processorFunc(func(ctx context.Context, f *frame.Frame) error {
				entered <- struct{}{}
				<-gate
				return c.Process(ctx, f)
			})
		})
	require.NoError(t, err)
	defer m.Unsubscribe(id)

	// The first frame occupies the processor; the queue then holds at
	// most four, dropping oldest as more arrive.
	m.Deliver(feature.FFT, "motor1", indexedFrame(0))
	<-entered

	for i := uint32(1); i < 6; i++ {
		m.Deliver(feature.FFT, "motor1", indexedFrame(i))
	}
	close(gate)

	c.waitFor(t, 5)
	// 1 was dropped when 5 arrived; delivery stays in order.
	assert.Equal(t, []uint32{0, 2, 3, 4, 5}, c.collected())
}

type processorFunc func(context.Context, *frame.Frame) error

func (fn processorFunc) Process(ctx context.Context, f *frame.Frame) error { return fn(ctx, f) }

func TestUnsubscribeIdempotent(t *testing.T) {
	m := NewManager(ManagerDeps{})
	defer m.Stop(time.Second)

	c := newCollector()
	id, err := m.Subscribe(context.Background(), feature.Trend, "motor1", 0,
		func() Processor { return c })
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Unsubscribe(id))
	assert.Equal(t, 0, m.Count())
	require.NoError(t, m.Unsubscribe(id))
	require.NoError(t, m.Unsubscribe("never-existed"))
}

func TestDeliverAfterUnsubscribeIsNoOp(t *testing.T) {
	m := NewManager(ManagerDeps{})
	defer m.Stop(time.Second)

	c := newCollector()
	id, err := m.Subscribe(context.Background(), feature.Trend, "motor1", 0,
		func() Processor { return c })
	require.NoError(t, err)
	require.NoError(t, m.Unsubscribe(id))

	m.Deliver(feature.Trend, "motor1", indexedFrame(0))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.collected())
}

func TestProcessorPanicRestartsWithFreshState(t *testing.T) {
	m := NewManager(ManagerDeps{QueueCapacity: 16})
	defer m.Stop(time.Second)

	var mu sync.Mutex
	var instances int
	c := newCollector()

	factory := func() Processor {
		mu.Lock()
		instances++
		first := instances == 1
		mu.Unlock()
		return processorFunc(func(ctx context.Context, f *frame.Frame) error {
			if first {
				panic("poisoned state")
			}
			return c.Process(ctx, f)
		})
	}

	_, err := m.Subscribe(context.Background(), feature.Trend, "motor1", 0, factory)
	require.NoError(t, err)

	// First frame panics the first instance; later frames run on the
	// replacement.
	m.Deliver(feature.Trend, "motor1", indexedFrame(0))
	m.Deliver(feature.Trend, "motor1", indexedFrame(1))
	m.Deliver(feature.Trend, "motor1", indexedFrame(2))

	c.waitFor(t, 2)
	assert.Equal(t, []uint32{1, 2}, c.collected())

	mu.Lock()
	assert.Equal(t, 2, instances)
	mu.Unlock()
}

func TestAllChannelFeatureForcesChannelAll(t *testing.T) {
	m := NewManager(ManagerDeps{})
	defer m.Stop(time.Second)

	id, err := m.Subscribe(context.Background(), feature.Tabular, "motor1", 3,
		func() Processor { return newCollector() })
	require.NoError(t, err)

	m.mu.RLock()
	s := m.sinks[id]
	m.mu.RUnlock()
	assert.Equal(t, ChannelAll, s.Channel())
}

func TestHasSinks(t *testing.T) {
	m := NewManager(ManagerDeps{})
	defer m.Stop(time.Second)

	assert.False(t, m.HasSinks(feature.FFT, "motor1"))

	id, err := m.Subscribe(context.Background(), feature.FFT, "motor1", 0,
		func() Processor { return newCollector() })
	require.NoError(t, err)
	assert.True(t, m.HasSinks(feature.FFT, "motor1"))
	assert.False(t, m.HasSinks(feature.FFT, "motor2"))
	assert.False(t, m.HasSinks(feature.Orbit, "motor1"))

	require.NoError(t, m.Unsubscribe(id))
	assert.False(t, m.HasSinks(feature.FFT, "motor1"))
}

func TestSinkOutlivesSubscriberContext(t *testing.T) {
	m := NewManager(ManagerDeps{QueueCapacity: 16})
	defer m.Stop(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()
	_, err := m.Subscribe(ctx, feature.Trend, "motor1", 0,
		func() Processor { return c })
	require.NoError(t, err)

	// A request-scoped context ends with the request; the sink keeps
	// draining until Unsubscribe or Stop.
	cancel()

	for i := uint32(0); i < 3; i++ {
		m.Deliver(feature.Trend, "motor1", indexedFrame(i))
	}
	c.waitFor(t, 3)
	assert.Equal(t, []uint32{0, 1, 2}, c.collected())
}

func TestSubscribeRejectsCancelledContext(t *testing.T) {
	m := NewManager(ManagerDeps{})
	defer m.Stop(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Subscribe(ctx, feature.Trend, "motor1", 0,
		func() Processor { return newCollector() })
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestStopRejectsNewSubscriptions(t *testing.T) {
	m := NewManager(ManagerDeps{})
	require.NoError(t, m.Stop(time.Second))

	_, err := m.Subscribe(context.Background(), feature.FFT, "motor1", 0,
		func() Processor { return newCollector() })
	assert.Error(t, err)
}
