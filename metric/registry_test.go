package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCounter(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter_total",
		Help: "test counter",
	})

	require.NoError(t, r.RegisterCounter("canvas", "conversions", counter))

	// Same key again must be rejected
	err := r.RegisterCounter("canvas", "conversions", counter)
	assert.Error(t, err)
}

func TestRegisterGaugeAndUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "test gauge",
	})

	require.NoError(t, r.RegisterGauge("gateway", "sessions", gauge))
	assert.True(t, r.Unregister("gateway", "sessions"))
	assert.False(t, r.Unregister("gateway", "sessions"))

	// Re-registration succeeds after unregister
	require.NoError(t, r.RegisterGauge("gateway", "sessions", gauge))
}

func TestCoreMetricsPresent(t *testing.T) {
	r := NewMetricsRegistry()

	m := r.CoreMetrics()
	require.NotNil(t, m)
	assert.NotNil(t, m.MutationsTotal)
	assert.NotNil(t, m.StoreVersion)
	assert.NotNil(t, m.SerializerDrops)

	// Using the metrics must not panic
	m.MutationsTotal.WithLabelValues("node", "add").Inc()
	m.TransactionsTotal.WithLabelValues("committed").Inc()
	m.StoreVersion.Set(3)
}

func TestHandlerNotNil(t *testing.T) {
	r := NewMetricsRegistry()
	assert.NotNil(t, r.Handler())
}
