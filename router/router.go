// Package router turns raw bus envelopes into decoded frames and fans
// them out: resolve the tag, decode, persist when recording, deliver
// to matching subscriptions in deterministic feature order.
package router

import (
	"context"
	"hash/fnv"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/c360/vibstreams/errors"
	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/ingress"
	"github.com/c360/vibstreams/metric"
	"github.com/c360/vibstreams/pkg/worker"
)

// Persister is the recording write path. Implemented by
// recording.Writer.
type Persister interface {
	Submit(recordingID uint, f *frame.Frame, recvTime time.Time) error
}

// Deliverer is the subscription fan-out surface. Implemented by
// subscription.Manager.
type Deliverer interface {
	Deliver(f feature.Feature, model string, fr *frame.Frame)
	HasSinks(f feature.Feature, model string) bool
}

// Router decodes and fans out frames under the current configuration
// snapshot.
type Router struct {
	deps RouterDeps

	snapshot atomic.Pointer[Snapshot]

	// One single-worker lane per slot; a tag always hashes to the same
	// lane, so its frames persist and deliver in arrival order even
	// with many lanes routing in parallel.
	lanes []*worker.Pool[ingress.Envelope]
}

// RouterDeps carries Router dependencies.
type RouterDeps struct {
	Persister Persister
	Deliverer Deliverer
	Metrics   *metric.Metrics // optional
	Logger    *slog.Logger    // optional

	// Workers sizes the routing lanes; GOMAXPROCS when zero. Tags are
	// pinned to lanes by hash.
	Workers int

	// QueueSize bounds queued envelopes across all lanes; 1024 when
	// zero.
	QueueSize int
}

// NewRouter creates a router with an empty snapshot.
func NewRouter(deps RouterDeps) *Router {
	if deps.Workers <= 0 {
		deps.Workers = runtime.GOMAXPROCS(0)
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = 1024
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "router")

	laneCapacity := deps.QueueSize / deps.Workers
	if laneCapacity < 1 {
		laneCapacity = 1
	}

	r := &Router{deps: deps}
	r.snapshot.Store(NewSnapshot(0, nil))
	r.lanes = make([]*worker.Pool[ingress.Envelope], deps.Workers)
	for i := range r.lanes {
		r.lanes[i] = worker.NewPool(1, laneCapacity, r.process)
	}
	return r
}

// Start launches the routing lanes.
func (r *Router) Start(ctx context.Context) error {
	for _, lane := range r.lanes {
		if err := lane.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop drains queued envelopes and stops the lanes.
func (r *Router) Stop(timeout time.Duration) error {
	var firstErr error
	for _, lane := range r.lanes {
		if err := lane.Stop(timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UpdateSnapshot swaps in a new configuration snapshot. Frames already
// picked up by a worker finish under the snapshot they resolved with.
func (r *Router) UpdateSnapshot(s *Snapshot) {
	r.snapshot.Store(s)
	r.deps.Logger.Info("snapshot updated", "epoch", s.Epoch, "tags", len(s.Tags()))
}

// Snapshot returns the current snapshot.
func (r *Router) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Handle implements ingress.Handler. Never blocks: a full lane drops
// the envelope.
func (r *Router) Handle(_ context.Context, env ingress.Envelope) {
	lane := r.lanes[laneFor(env.Topic, len(r.lanes))]
	if err := lane.Submit(env); err != nil {
		if r.deps.Metrics != nil {
			r.deps.Metrics.AdapterOverflow.Inc()
		}
		r.deps.Logger.Warn("routing lane full, envelope dropped", "topic", env.Topic)
	}
}

// laneFor maps a topic onto a lane index.
func laneFor(topic string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return int(h.Sum32() % uint32(lanes))
}

// process routes one envelope end to end under a single snapshot load.
func (r *Router) process(_ context.Context, env ingress.Envelope) error {
	snap := r.snapshot.Load()

	binding, ok := snap.Resolve(env.Topic)
	if !ok {
		r.countDecodeError("unknown_tag")
		r.deps.Logger.Debug("unknown tag", "topic", env.Topic)
		return nil
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.InFlightFrames.Inc()
		defer r.deps.Metrics.InFlightFrames.Dec()
	}

	f, err := r.decode(env, binding)
	if err != nil {
		kind := errors.DecodeKind(err)
		if kind == "" {
			kind = "other"
		}
		r.countDecodeError(kind)
		r.deps.Logger.Debug("decode failed", "topic", env.Topic, "error", err)
		return nil
	}
	f.Topic = env.Topic

	if binding.RecordingID != 0 && r.deps.Persister != nil {
		if err := r.deps.Persister.Submit(binding.RecordingID, f, env.RecvTime); err != nil {
			r.deps.Logger.Error("persist submit failed",
				"recording_id", binding.RecordingID, "error", err)
		}
	}

	if r.deps.Deliverer != nil {
		for _, feat := range feature.FanOutOrder {
			if r.deps.Deliverer.HasSinks(feat, binding.Model) {
				r.deps.Deliverer.Deliver(feat, binding.Model, f)
			}
		}
	}
	return nil
}

// decode picks the wire format: JSON payloads open with '{', anything
// else is the binary layout.
func (r *Router) decode(env ingress.Envelope, binding Binding) (*frame.Frame, error) {
	if len(env.Payload) > 0 && env.Payload[0] == '{' {
		return frame.DecodeJSON(env.Payload, binding.MainChannels)
	}
	return frame.Decode(env.Payload)
}

func (r *Router) countDecodeError(kind string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.DecodeErrors.WithLabelValues(kind).Inc()
	}
}
