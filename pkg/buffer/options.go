package buffer

import (
	"github.com/c360/vibstreams/metric"
)

// Option configures a buffer at construction time.
type Option[T any] func(*bufferOptions[T])

type bufferOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]
	metricsReg     *metric.MetricsRegistry
	metricsPrefix  string
}

func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{
		overflowPolicy: DropOldest,
	}
	for _, opt := range options {
		opt(opts)
	}
	return opts
}

// WithOverflowPolicy sets the behavior when the buffer is full.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(o *bufferOptions[T]) {
		o.overflowPolicy = policy
	}
}

// WithDropCallback registers a callback invoked with each dropped item.
func WithDropCallback[T any](cb DropCallback[T]) Option[T] {
	return func(o *bufferOptions[T]) {
		o.dropCallback = cb
	}
}

// WithMetrics exposes buffer statistics as Prometheus metrics under the
// given prefix.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(o *bufferOptions[T]) {
		o.metricsReg = registry
		o.metricsPrefix = prefix
	}
}
