// Package metrics wires Prometheus collectors around the queue, registry,
// and pipeline, exposed over promhttp for cmd/apiserver and cmd/worker.
// Grounded on jorgemgr94-go-learning/cmd/advanced/main.go's ProcessorMetrics
// (Counter/Histogram/Gauge construction with ConstLabels) and
// 99souls-ariadne/engine/telemetry/metrics/prometheus.go's registration
// style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the process-wide collectors registered against one
// prometheus.Registerer.
type Collector struct {
	TasksClaimed    prometheus.Counter
	TasksCompleted  prometheus.Counter
	TasksFailed     prometheus.Counter
	TasksDeadLetter prometheus.Counter

	PipelineStepDuration *prometheus.HistogramVec
	PipelineStepErrors   *prometheus.CounterVec

	WorkersActive prometheus.Gauge
	QueueDepth    *prometheus.GaugeVec
}

// New creates and registers a Collector. Registering twice against the
// same Registerer (e.g. in tests) panics on AlreadyRegisteredError, the
// same behavior 99souls-ariadne's PrometheusProvider guards against by
// constructing one Collector per process.
func New(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		TasksClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_claimed_total",
			Help: "Total tasks claimed from the pending queue.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_completed_total",
			Help: "Total tasks that completed successfully.",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_failed_total",
			Help: "Total tasks that failed (including retries).",
		}),
		TasksDeadLetter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_dead_letter_total",
			Help: "Total tasks routed to the dead letter list.",
		}),
		PipelineStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_step_duration_seconds",
			Help:    "Per-filter-step execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"filter"}),
		PipelineStepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pipeline_step_errors_total",
			Help: "Per-filter-step failure count.",
		}, []string{"filter"}),
		WorkersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "workers_active",
			Help: "Workers currently classified as alive by the registry.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Queue list lengths by state.",
		}, []string{"list"}),
	}

	reg.MustRegister(
		c.TasksClaimed, c.TasksCompleted, c.TasksFailed, c.TasksDeadLetter,
		c.PipelineStepDuration, c.PipelineStepErrors,
		c.WorkersActive, c.QueueDepth,
	)
	return c
}

// StepObservation is one filter step's timing/outcome, decoupled from
// fpipeline.StepStat so this package doesn't need to import it.
type StepObservation struct {
	Name    string
	Seconds float64
	Failed  bool
}

// ObserveSteps feeds per-step stats into the histogram/counter vectors.
func (c *Collector) ObserveSteps(steps []StepObservation) {
	for _, s := range steps {
		c.PipelineStepDuration.WithLabelValues(s.Name).Observe(s.Seconds)
		if s.Failed {
			c.PipelineStepErrors.WithLabelValues(s.Name).Inc()
		}
	}
}
