package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "polyshark"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	cycles        prometheus.Counter
	stale         prometheus.Counter
	violations    prometheus.Counter
	opportunities prometheus.Counter
	submitted     prometheus.Counter
	failed        prometheus.Counter
	budget        prometheus.Counter
	engaged       prometheus.Counter
	restored      prometheus.Counter
	expired       prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	newCounter := func(name, help string) prometheus.Counter {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      name,
			Help:      help,
		})
		registry.MustRegister(counter)
		return counter
	}

	p := &Prometheus{
		registry:      registry,
		cycles:        newCounter("cycles_total", "Total number of decision cycles run."),
		stale:         newCounter("cycles_skipped_stale_total", "Cycles skipped because market data was stale."),
		violations:    newCounter("violations_detected_total", "Constraint violations detected."),
		opportunities: newCounter("opportunities_scored_total", "Opportunities that cleared the mode minimum edge."),
		submitted:     newCounter("trades_submitted_total", "Trades submitted to the execution venue."),
		failed:        newCounter("trades_failed_total", "Trade submissions that errored or timed out."),
		budget:        newCounter("budget_rejections_total", "Reservations rejected for insufficient allowance."),
		engaged:       newCounter("safe_mode_engaged_total", "Transitions into safe mode."),
		restored:      newCounter("safe_mode_restored_total", "Recoveries from safe mode back to running."),
		expired:       newCounter("permission_expirations_total", "Transitions into the permission-expired state."),
	}

	p.Metrics = &Metrics{
		CyclesTotal:          promCounter{p.cycles},
		CyclesSkippedStale:   promCounter{p.stale},
		ViolationsDetected:   promCounter{p.violations},
		OpportunitiesScored:  promCounter{p.opportunities},
		TradesSubmitted:      promCounter{p.submitted},
		TradesFailed:         promCounter{p.failed},
		BudgetRejected:       promCounter{p.budget},
		SafeModeEngaged:      promCounter{p.engaged},
		SafeModeRestored:     promCounter{p.restored},
		PermissionExpiration: promCounter{p.expired},
	}

	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
