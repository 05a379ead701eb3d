// Package ingress receives raw DAQ payloads from the bus and hands
// them to the router. Arrival is decoupled from dispatch through a
// bounded drop-oldest queue so a slow router never backs up into the
// bus client.
package ingress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/metric"
	"github.com/c360/vibstreams/natsclient"
	"github.com/c360/vibstreams/pkg/buffer"
)

// DefaultQueueCapacity is the per-adapter arrival queue bound.
const DefaultQueueCapacity = 1024

// DefaultDrainTimeout bounds how long Stop waits for queued payloads
// to reach the handler.
const DefaultDrainTimeout = 2 * time.Second

// Envelope is one received bus message.
type Envelope struct {
	Topic    string
	Payload  []byte
	RecvTime time.Time
}

// Handler consumes dispatched envelopes. Implemented by the router.
type Handler interface {
	Handle(ctx context.Context, env Envelope)
}

// Adapter subscribes to a set of tags and dispatches received payloads.
type Adapter struct {
	deps AdapterDeps

	queue  buffer.Buffer[Envelope]
	notify chan struct{}

	mu      sync.Mutex
	tags    map[string]bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// AdapterDeps carries Adapter dependencies.
type AdapterDeps struct {
	Bus     *natsclient.Client
	Handler Handler
	Metrics *metric.Metrics // optional
	Logger  *slog.Logger    // optional

	// QueueCapacity bounds the arrival queue; DefaultQueueCapacity
	// when zero.
	QueueCapacity int

	// DrainTimeout bounds Stop; DefaultDrainTimeout when zero.
	DrainTimeout time.Duration
}

// NewAdapter creates an adapter. Subscriptions are established by
// SetTags after Start.
func NewAdapter(deps AdapterDeps) (*Adapter, error) {
	if deps.Bus == nil || deps.Handler == nil {
		return nil, errors.WrapInvalid(
			errors.ErrNoConnection, "Adapter", "NewAdapter", "validate dependencies")
	}
	if deps.QueueCapacity <= 0 {
		deps.QueueCapacity = DefaultQueueCapacity
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = DefaultDrainTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "ingress-adapter")

	a := &Adapter{
		deps:   deps,
		notify: make(chan struct{}, 1),
		tags:   make(map[string]bool),
		done:   make(chan struct{}),
	}

	opts := []buffer.Option[Envelope]{
		buffer.WithOverflowPolicy[Envelope](buffer.DropOldest),
	}
	if deps.Metrics != nil {
		overflow := deps.Metrics.AdapterOverflow
		opts = append(opts, buffer.WithDropCallback(func(Envelope) {
			overflow.Inc()
		}))
	}

	queue, err := buffer.NewCircularBuffer(deps.QueueCapacity, opts...)
	if err != nil {
		return nil, err
	}
	a.queue = queue
	return a, nil
}

// Start launches the dispatch goroutine.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Adapter", "Start", "check state")
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)
	go a.dispatch(ctx)
	return nil
}

// SetTags replaces the subscribed tag set: new tags are subscribed,
// removed tags unsubscribed. Called on project load and on every
// configuration change.
func (a *Adapter) SetTags(ctx context.Context, tags []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make(map[string]bool, len(tags))
	for _, tag := range tags {
		next[tag] = true
	}

	var firstErr error
	for tag := range a.tags {
		if next[tag] {
			continue
		}
		if err := a.deps.Bus.Unsubscribe(tag); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.tags, tag)
	}

	for tag := range next {
		if a.tags[tag] {
			continue
		}
		if err := a.deps.Bus.Subscribe(ctx, tag, a.receiveTagged(tag)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.tags[tag] = true
	}

	a.deps.Logger.Info("tag subscriptions updated", "count", len(a.tags))
	return firstErr
}

// Tags returns the currently subscribed tag set.
func (a *Adapter) Tags() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.tags))
	for tag := range a.tags {
		out = append(out, tag)
	}
	return out
}

// receiveTagged is the subscription callback bound to a specific tag.
// It runs on the bus client's delivery goroutine, so it never blocks:
// overflow drops the oldest envelope.
func (a *Adapter) receiveTagged(tag string) func(context.Context, []byte) {
	return func(_ context.Context, data []byte) {
		// The payload buffer belongs to the bus client; copy before
		// queueing.
		payload := make([]byte, len(data))
		copy(payload, data)
		a.enqueue(Envelope{Topic: tag, Payload: payload, RecvTime: time.Now().UTC()})
	}
}

func (a *Adapter) enqueue(env Envelope) {
	if err := a.queue.Write(env); err != nil {
		return // queue closed during shutdown
	}
	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// dispatch drains the arrival queue into the handler.
func (a *Adapter) dispatch(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain(ctx)
			return
		case <-a.notify:
		}

		for {
			env, ok := a.queue.Read()
			if !ok {
				break
			}
			a.deps.Handler.Handle(ctx, env)
		}
	}
}

// drain hands remaining queued envelopes to the handler, bounded by
// the drain timeout.
func (a *Adapter) drain(ctx context.Context) {
	deadline := time.Now().Add(a.deps.DrainTimeout)
	for time.Now().Before(deadline) {
		env, ok := a.queue.Read()
		if !ok {
			return
		}
		a.deps.Handler.Handle(ctx, env)
	}
	if remaining := a.queue.Size(); remaining > 0 {
		a.deps.Logger.Warn("drain timeout with envelopes remaining", "remaining", remaining)
	}
}

// Stop unsubscribes, stops dispatch, and drains the queue.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	for tag := range a.tags {
		_ = a.deps.Bus.Unsubscribe(tag)
		delete(a.tags, tag)
	}
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	select {
	case <-a.done:
	case <-time.After(a.deps.DrainTimeout + time.Second):
		return errors.WrapTransient(
			errors.ErrShuttingDown, "Adapter", "Stop", "wait for dispatcher")
	}
	return a.queue.Close()
}
