package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeCompleted labels jobs resolved with a Decision.
	OutcomeCompleted = "completed"
	// OutcomeFailed labels jobs resolved with an error (abort or internal).
	OutcomeFailed = "failed"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "decision_engine",
			Name:      "decisions_total",
			Help:      "Total number of jobs resolved to a terminal state, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "decision_engine",
			Name:      "pipeline_seconds",
			Help:      "End-to-end pipeline latency in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "decision_engine",
			Name:      "stage_seconds",
			Help:      "Per-stage execution latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		},
		[]string{"stage"},
	)

	submissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "decision_engine",
			Name:      "submissions_total",
			Help:      "Total number of incidents accepted by the dispatcher.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "decision_engine",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting in the work queue.",
		},
	)
)

// Register attaches decision-engine collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		decisionsTotal,
		pipelineDurationSeconds,
		stageDurationSeconds,
		submissionsTotal,
		queueDepth,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDecision records one resolved job with its pipeline duration.
func ObserveDecision(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeFailed {
		label = OutcomeCompleted
	}
	decisionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	pipelineDurationSeconds.Observe(duration.Seconds())
}

// ObserveStage records one stage execution.
func ObserveStage(stage string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveSubmission counts an accepted incident submission.
func ObserveSubmission() {
	submissionsTotal.Inc()
}

// QueueDepthInc marks one job entering the work queue.
func QueueDepthInc() { queueDepth.Inc() }

// QueueDepthDec marks one job leaving the work queue.
func QueueDepthDec() { queueDepth.Dec() }
