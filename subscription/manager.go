// Package subscription tracks analytic sinks and delivers frames to
// them through bounded drop-oldest queues. Each sink gets a pinned
// goroutine driving its processor; a panicking processor is restarted
// with fresh state without disturbing other sinks.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/metric"
)

// DefaultQueueCapacity bounds each sink's delivery queue.
const DefaultQueueCapacity = 4

// ChannelAll subscribes a sink to every channel of the model's frames.
const ChannelAll = -1

// Processor consumes frames for one sink. Process is called from the
// sink's pinned goroutine, in frame_index order for that sink.
type Processor interface {
	Process(ctx context.Context, f *frame.Frame) error
}

// ProcessorFactory builds a fresh processor. Called once on subscribe
// and again after a processor panic, so restarted processors never see
// stale state.
type ProcessorFactory func() Processor

// Manager owns the sink registry. Sink goroutines run under the
// manager's own lifecycle context, not the subscriber's: a sink
// outlives the request that created it until Unsubscribe or Stop.
type Manager struct {
	deps ManagerDeps

	lifecycle context.Context
	cancel    context.CancelFunc

	mu     sync.RWMutex
	sinks  map[string]*sink
	byKey  map[sinkKey][]*sink
	closed bool

	wg sync.WaitGroup
}

// ManagerDeps carries Manager dependencies.
type ManagerDeps struct {
	Metrics *metric.Metrics // optional
	Logger  *slog.Logger    // optional

	// QueueCapacity per sink; DefaultQueueCapacity when zero.
	QueueCapacity int
}

type sinkKey struct {
	feature feature.Feature
	model   string
}

// NewManager creates an empty sink registry.
func NewManager(deps ManagerDeps) *Manager {
	if deps.QueueCapacity <= 0 {
		deps.QueueCapacity = DefaultQueueCapacity
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "subscription-manager")

	lifecycle, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:      deps,
		lifecycle: lifecycle,
		cancel:    cancel,
		sinks:     make(map[string]*sink),
		byKey:     make(map[sinkKey][]*sink),
	}
}

// Subscribe registers a sink for (feature, model, channel) and starts
// its pinned goroutine. channel is ChannelAll for all-channel features.
// ctx bounds the call only; the sink itself runs until Unsubscribe or
// Stop. Returns the sink handle id.
func (m *Manager) Subscribe(ctx context.Context, f feature.Feature, model string,
	channel int, factory ProcessorFactory) (string, error) {

	if err := ctx.Err(); err != nil {
		return "", errors.WrapInvalid(err, "Manager", "Subscribe", "check context")
	}
	if factory == nil {
		return "", errors.WrapInvalid(
			fmt.Errorf("nil processor factory"), "Manager", "Subscribe", "validate factory")
	}
	if f.AllChannels() {
		channel = ChannelAll
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.WrapInvalid(errors.ErrShuttingDown, "Manager", "Subscribe", "check state")
	}

	s, err := newSink(sinkConfig{
		id:       uuid.NewString(),
		feature:  f,
		model:    model,
		channel:  channel,
		capacity: m.deps.QueueCapacity,
		factory:  factory,
		metrics:  m.deps.Metrics,
		logger:   m.deps.Logger,
	})
	if err != nil {
		return "", err
	}

	key := sinkKey{feature: f, model: model}
	m.sinks[s.id] = s
	m.byKey[key] = append(m.byKey[key], s)

	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveSubscriptions.Inc()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run(m.lifecycle)
	}()

	return s.id, nil
}

// Unsubscribe removes a sink and releases its buffered frames.
// Idempotent: unknown ids are a no-op.
func (m *Manager) Unsubscribe(id string) error {
	m.mu.Lock()
	s, ok := m.sinks[id]
	if ok {
		delete(m.sinks, id)
		key := sinkKey{feature: s.feature, model: s.model}
		m.byKey[key] = removeSink(m.byKey[key], s)
		if len(m.byKey[key]) == 0 {
			delete(m.byKey, key)
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	s.stop()
	if m.deps.Metrics != nil {
		m.deps.Metrics.ActiveSubscriptions.Dec()
	}
	return nil
}

// Deliver enqueues a frame to every sink registered for (feature,
// model). Per-channel sinks share the same immutable frame; each
// processor reads its own channel. Never blocks: full queues drop
// their oldest frame.
func (m *Manager) Deliver(f feature.Feature, model string, fr *frame.Frame) {
	m.mu.RLock()
	targets := m.byKey[sinkKey{feature: f, model: model}]
	m.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(fr)
	}
}

// HasSinks reports whether any sink is registered for (feature, model).
func (m *Manager) HasSinks(f feature.Feature, model string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byKey[sinkKey{feature: f, model: model}]) > 0
}

// Count returns the number of registered sinks.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Stop unsubscribes every sink and waits for their goroutines.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*sink, 0, len(m.sinks))
	for _, s := range m.sinks {
		all = append(all, s)
	}
	m.sinks = make(map[string]*sink)
	m.byKey = make(map[sinkKey][]*sink)
	m.mu.Unlock()

	m.cancel()

	for _, s := range all {
		s.stop()
		if m.deps.Metrics != nil {
			m.deps.Metrics.ActiveSubscriptions.Dec()
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("sink goroutines still running after %v", timeout),
			"Manager", "Stop", "wait for sinks")
	}
}

func removeSink(sinks []*sink, target *sink) []*sink {
	out := sinks[:0]
	for _, s := range sinks {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
