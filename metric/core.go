// Package metric provides Prometheus metrics management for the
// VibStreams pipeline. A MetricsRegistry wraps a private prometheus
// registry; the core pipeline metrics (adapter overflow, decode errors,
// persistence drops, subscription drops, bus reconnects, in-flight
// frames, open recordings, active subscriptions) are always registered,
// and components register their own metrics on top.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core pipeline metrics every deployment exposes.
type Metrics struct {
	// Counters
	AdapterOverflow     prometheus.Counter
	DecodeErrors        *prometheus.CounterVec // label: kind
	PersistDropped      prometheus.Counter
	SubscriptionDropped *prometheus.CounterVec // label: sink
	BusReconnects       prometheus.Counter

	// Gauges
	InFlightFrames      prometheus.Gauge
	OpenRecordings      prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
}

// NewMetrics creates the core pipeline metrics (unregistered).
func NewMetrics() *Metrics {
	return &Metrics{
		AdapterOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibstreams",
			Name:      "adapter_overflow_total",
			Help:      "Payloads dropped by the ingress adapter queue",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibstreams",
			Name:      "decode_errors_total",
			Help:      "Frames dropped due to codec errors, by kind",
		}, []string{"kind"}),
		PersistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibstreams",
			Name:      "persist_dropped_total",
			Help:      "Frames not persisted because the writer queue was full",
		}),
		SubscriptionDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibstreams",
			Name:      "subscription_dropped_total",
			Help:      "Frames dropped from sink delivery queues, by sink",
		}, []string{"sink"}),
		BusReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibstreams",
			Name:      "bus_reconnects_total",
			Help:      "Reconnections to the message bus",
		}),
		InFlightFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibstreams",
			Name:      "in_flight_frames",
			Help:      "Frames currently between decode and delivery",
		}),
		OpenRecordings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibstreams",
			Name:      "open_recordings",
			Help:      "Recordings currently accepting appends",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibstreams",
			Name:      "active_subscriptions",
			Help:      "Registered analytic sinks",
		}),
	}
}

// collectors returns every core metric for registration.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.AdapterOverflow,
		m.DecodeErrors,
		m.PersistDropped,
		m.SubscriptionDropped,
		m.BusReconnects,
		m.InFlightFrames,
		m.OpenRecordings,
		m.ActiveSubscriptions,
	}
}
