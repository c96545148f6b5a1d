package goxq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by evaluations. A nil
// *Metrics records nothing.
type Metrics struct {
	evaluations prometheus.Counter
	calls       prometheus.Counter
	tailCalls   prometheus.Counter
	groups      prometheus.Counter
	depth       prometheus.Histogram
}

// NewMetrics registers the collectors of the engine to reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		evaluations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "goxq",
			Name:      "evaluations_total",
			Help:      "Number of evaluations started.",
		}),
		calls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "goxq",
			Name:      "function_calls_total",
			Help:      "Number of user function calls, tail calls excluded.",
		}),
		tailCalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "goxq",
			Name:      "tail_calls_total",
			Help:      "Number of user function calls run by the trampoline of their caller.",
		}),
		groups: f.NewCounter(prometheus.CounterOpts{
			Namespace: "goxq",
			Name:      "groups_total",
			Help:      "Number of groups formed by group by clauses.",
		}),
		depth: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "goxq",
			Name:      "call_depth",
			Help:      "Depth of nested function calls at each call.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (m *Metrics) observeEvaluation() {
	if m == nil {
		return
	}
	m.evaluations.Inc()
}

func (m *Metrics) observeCall(depth int) {
	if m == nil {
		return
	}
	m.calls.Inc()
	m.depth.Observe(float64(depth))
}

func (m *Metrics) observeTailCall() {
	if m == nil {
		return
	}
	m.tailCalls.Inc()
}

func (m *Metrics) observeGroups(n int) {
	if m == nil {
		return
	}
	m.groups.Add(float64(n))
}
