package runtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelayMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := newRelayMetrics(registry, "edge")
	require.NoError(t, err)

	m.classified.WithLabelValues("marker").Inc()
	m.poisoned.WithLabelValues("unprocessable").Inc()

	count, err := testutil.GatherAndCount(registry, "edge_classified_total", "edge_poison_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	again, err := newRelayMetrics(registry, "edge")
	require.NoError(t, err)
	assert.Same(t, m.classified, again.classified)
	assert.Equal(t, 1.0, testutil.ToFloat64(again.classified.WithLabelValues("marker")))
}

func TestNewRelayMetrics_Conflict(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "edge_classified_total", Help: "conflicting"}))

	_, err := newRelayMetrics(registry, "edge")
	assert.Error(t, err)
}
