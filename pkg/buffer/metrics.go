package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/vibstreams/metric"
)

// bufferMetrics mirrors buffer statistics into Prometheus.
type bufferMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	drops     prometheus.Counter
	overflows prometheus.Counter
	depth     prometheus.Gauge
}

func newBufferMetrics(registry *metric.MetricsRegistry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_buffer_writes_total",
			Help: "Items written to the buffer",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_buffer_reads_total",
			Help: "Items read from the buffer",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_buffer_drops_total",
			Help: "Items dropped by the overflow policy",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_buffer_overflows_total",
			Help: "Writes that found the buffer full",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_buffer_depth",
			Help: "Current buffer occupancy",
		}),
	}

	serviceName := "buffer"
	if err := registry.RegisterCounter(serviceName, prefix+"_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(serviceName, prefix+"_overflows", m.overflows); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(serviceName, prefix+"_depth", m.depth); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size int) {
	m.writes.Inc()
	m.depth.Set(float64(size))
}

func (m *bufferMetrics) recordRead(size int) {
	m.reads.Inc()
	m.depth.Set(float64(size))
}

func (m *bufferMetrics) recordDrop()     { m.drops.Inc() }
func (m *bufferMetrics) recordOverflow() { m.overflows.Inc() }
