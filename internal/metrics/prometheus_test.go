package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.CyclesTotal.Inc()
	prom.Metrics.CyclesSkippedStale.Inc()
	prom.Metrics.ViolationsDetected.Inc()
	prom.Metrics.OpportunitiesScored.Inc()
	prom.Metrics.TradesSubmitted.Inc()
	prom.Metrics.TradesFailed.Inc()
	prom.Metrics.BudgetRejected.Inc()
	prom.Metrics.SafeModeEngaged.Inc()
	prom.Metrics.SafeModeRestored.Inc()
	prom.Metrics.PermissionExpiration.Inc()

	assertCounter(t, prom.cycles, 1)
	assertCounter(t, prom.stale, 1)
	assertCounter(t, prom.violations, 1)
	assertCounter(t, prom.opportunities, 1)
	assertCounter(t, prom.submitted, 1)
	assertCounter(t, prom.failed, 1)
	assertCounter(t, prom.budget, 1)
	assertCounter(t, prom.engaged, 1)
	assertCounter(t, prom.restored, 1)
	assertCounter(t, prom.expired, 1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
