package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistryHasCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.CoreMetrics())

	core := registry.CoreMetrics()
	core.AdapterOverflow.Inc()
	core.DecodeErrors.WithLabelValues("header_invalid").Inc()
	core.DecodeErrors.WithLabelValues("header_invalid").Inc()
	core.OpenRecordings.Set(3)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				byName[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				byName[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 1.0, byName["vibstreams_adapter_overflow_total"])
	assert.Equal(t, 2.0, byName["vibstreams_decode_errors_total"])
	assert.Equal(t, 3.0, byName["vibstreams_open_recordings"])
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewMetricsRegistry()

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_frames_total", Help: "h"})
	require.NoError(t, registry.RegisterCounter("router", "frames", c1))

	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_frames_dup_total", Help: "h"})
	err := registry.RegisterCounter("router", "frames", c2)
	require.Error(t, err)
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "adapter_queue_depth", Help: "h"})
	require.NoError(t, registry.RegisterGauge("adapter", "queue_depth", g))

	assert.True(t, registry.Unregister("adapter", "queue_depth"))
	assert.False(t, registry.Unregister("adapter", "queue_depth"))

	g2 := prometheus.NewGauge(prometheus.GaugeOpts{Name: "adapter_queue_depth", Help: "h"})
	require.NoError(t, registry.RegisterGauge("adapter", "queue_depth", g2))
}
