package subscription

import (
	"context"
	"log/slog"
	"sync"

	"github.com/c360/vibstreams/feature"
	"github.com/c360/vibstreams/frame"
	"github.com/c360/vibstreams/metric"
	"github.com/c360/vibstreams/pkg/buffer"
)

// sink is one registered subscription: a bounded queue plus the pinned
// goroutine that drains it into the processor.
type sink struct {
	id      string
	feature feature.Feature
	model   string
	channel int

	queue   buffer.Buffer[*frame.Frame]
	notify  chan struct{}
	done    chan struct{}
	factory ProcessorFactory
	logger  *slog.Logger

	stopOnce sync.Once
}

type sinkConfig struct {
	id       string
	feature  feature.Feature
	model    string
	channel  int
	capacity int
	factory  ProcessorFactory
	metrics  *metric.Metrics
	logger   *slog.Logger
}

func newSink(cfg sinkConfig) (*sink, error) {
	s := &sink{
		id:      cfg.id,
		feature: cfg.feature,
		model:   cfg.model,
		channel: cfg.channel,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		factory: cfg.factory,
		logger: cfg.logger.With(
			"sink", cfg.id, "feature", cfg.feature.String(), "model", cfg.model),
	}

	opts := []buffer.Option[*frame.Frame]{
		buffer.WithOverflowPolicy[*frame.Frame](buffer.DropOldest),
	}
	if cfg.metrics != nil {
		dropped := cfg.metrics.SubscriptionDropped.WithLabelValues(cfg.id)
		opts = append(opts, buffer.WithDropCallback(func(*frame.Frame) {
			dropped.Inc()
		}))
	}

	queue, err := buffer.NewCircularBuffer(cfg.capacity, opts...)
	if err != nil {
		return nil, err
	}
	s.queue = queue
	return s, nil
}

// enqueue adds a frame, dropping the oldest on overflow. Never blocks.
func (s *sink) enqueue(f *frame.Frame) {
	if err := s.queue.Write(f); err != nil {
		return // queue closed during unsubscribe
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Channel returns the channel this sink consumes, or ChannelAll.
func (s *sink) Channel() int { return s.channel }

// run is the pinned processor loop. A processor panic is contained:
// the sink logs it, discards the panicked processor, and continues
// with a fresh one from the factory.
func (s *sink) run(ctx context.Context) {
	proc := s.factory()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			f, ok := s.queue.Read()
			if !ok {
				break
			}
			if !s.process(ctx, &proc, f) {
				return
			}
		}
	}
}

// process runs one frame through the processor, recovering panics.
// Returns false when the sink should exit.
func (s *sink) process(ctx context.Context, proc *Processor, f *frame.Frame) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("processor panicked, restarting with fresh state",
				"panic", r, "frame_index", f.FrameIndex)
			*proc = s.factory()
			alive = true
		}
	}()

	if err := (*proc).Process(ctx, f); err != nil {
		s.logger.Warn("processor error", "frame_index", f.FrameIndex, "error", err)
	}
	return true
}

// stop shuts the sink down and releases buffered frames.
func (s *sink) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.queue.Clear()
		_ = s.queue.Close()
	})
}
