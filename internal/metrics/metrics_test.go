package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/hyperion-cluster/hyperion/internal/metrics"
)

func TestUIConnectionsActiveGauge(t *testing.T) {
	metrics.UIConnectionsActive.Set(0)
	metrics.UIConnectionsActive.Inc()
	metrics.UIConnectionsActive.Inc()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.UIConnectionsActive))
	metrics.UIConnectionsActive.Dec()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UIConnectionsActive))
}

func TestEventsFannedOutCounterByKind(t *testing.T) {
	metrics.EventsFannedOutTotal.WithLabelValues("check").Add(0)
	before := testutil.ToFloat64(metrics.EventsFannedOutTotal.WithLabelValues("check"))
	metrics.EventsFannedOutTotal.WithLabelValues("check").Inc()
	after := testutil.ToFloat64(metrics.EventsFannedOutTotal.WithLabelValues("check"))
	assert.Equal(t, before+1, after)
}

func TestActionsDispatchedCounterByOutcome(t *testing.T) {
	before := testutil.ToFloat64(metrics.ActionsDispatchedTotal.WithLabelValues("start", "ok"))
	metrics.ActionsDispatchedTotal.WithLabelValues("start", "ok").Inc()
	after := testutil.ToFloat64(metrics.ActionsDispatchedTotal.WithLabelValues("start", "ok"))
	assert.Equal(t, before+1, after)
}

func TestCheckComponentDurationHistogramObserves(t *testing.T) {
	count := testutil.CollectAndCount(metrics.CheckComponentDuration)
	metrics.CheckComponentDuration.WithLabelValues("answered").Observe(0.25)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.CheckComponentDuration), count)
}
