package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorder_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.QueueDepth.WithLabelValues("u1").Set(3)
	r.QueueEnqueued.WithLabelValues("u1").Set(10)
	r.QueueProcessed.WithLabelValues("u1").Set(9)
	r.QueueErrors.WithLabelValues("u1").Set(1)
	r.BreakerState.WithLabelValues("broker-angel").Set(BreakerStateValue("OPEN"))
	r.ReconcileRetries.Set(2)
	r.PortfolioPnL.WithLabelValues("u1").Set(-50.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Contains(t, byName, "tradecore_queue_depth")
	assert.Equal(t, 3.0, byName["tradecore_queue_depth"].Metric[0].GetGauge().GetValue())

	require.Contains(t, byName, "tradecore_breaker_state")
	assert.Equal(t, 2.0, byName["tradecore_breaker_state"].Metric[0].GetGauge().GetValue())

	require.Contains(t, byName, "tradecore_reconcile_retry_queue_depth")
	assert.Equal(t, 2.0, byName["tradecore_reconcile_retry_queue_depth"].Metric[0].GetGauge().GetValue())
}

func TestBreakerStateValue(t *testing.T) {
	cases := map[string]float64{
		"CLOSED":    0,
		"HALF_OPEN": 1,
		"OPEN":      2,
		"":          0,
		"bogus":     0,
	}
	for state, want := range cases {
		assert.Equal(t, want, BreakerStateValue(state), state)
	}
}
