// Package metrics records Prometheus metrics for aggregation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a plan run.
const (
	OutcomeExecuted       = "executed"
	OutcomeSQLOnly        = "sql_only"
	OutcomeStoreError     = "store_error"
	OutcomePostProcessing = "post_processing_error"
)

// Recorder holds the collectors. A nil *Recorder records nothing.
type Recorder struct {
	statements   *prometheus.CounterVec
	plans        *prometheus.CounterVec
	planDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atspm_statements_total",
				Help: "Total number of statements sent to the store",
			},
			[]string{"aggregation", "status"},
		),
		plans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atspm_plans_total",
				Help: "Total number of aggregation plans run, by outcome",
			},
			[]string{"aggregation", "outcome"},
		),
		planDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atspm_plan_duration_seconds",
				Help:    "Time taken to run an aggregation plan",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"aggregation"},
		),
	}
}

// Statement counts one statement sent to the store.
func (r *Recorder) Statement(aggregation string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.statements.WithLabelValues(aggregation, status).Inc()
}

// Plan counts one finished plan and observes its duration.
func (r *Recorder) Plan(aggregation, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.plans.WithLabelValues(aggregation, outcome).Inc()
	r.planDuration.WithLabelValues(aggregation).Observe(elapsed.Seconds())
}
