package gsanity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors updated by a [Supervisor].
// A nil *Metrics disables collection.
type Metrics struct {
	Cycles            prometheus.Counter
	EvaluatorFailures prometheus.Counter
	OverdueRecords    prometheus.Counter
	Registered        prometheus.Gauge
	CycleDuration     prometheus.Histogram
}

// NewMetrics creates the supervisor metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "gsanity_cycles_total",
			Help: "Total number of supervisor evaluation cycles",
		}),
		EvaluatorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "gsanity_evaluator_failures_total",
			Help: "Total number of evaluator calls reporting failure",
		}),
		OverdueRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "gsanity_overdue_records_total",
			Help: "Total number of records found overdue",
		}),
		Registered: f.NewGauge(prometheus.GaugeOpts{
			Name: "gsanity_registered_records",
			Help: "Number of currently registered liveness records",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gsanity_cycle_duration_seconds",
			Help:    "Wall duration of a single evaluation cycle, including evaluators",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

func (m *Metrics) observeCycle(start time.Time, overdue int) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.OverdueRecords.Add(float64(overdue))
	m.CycleDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeEvaluatorFailure() {
	if m == nil {
		return
	}
	m.EvaluatorFailures.Inc()
}

func (m *Metrics) setRegistered(n int) {
	if m == nil {
		return
	}
	m.Registered.Set(float64(n))
}
