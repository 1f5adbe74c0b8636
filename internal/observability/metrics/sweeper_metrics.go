package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonCanceled         = "canceled"
	JobReasonUnknown          = "unknown"
)

// JobMetrics captures background job health, e.g. the retention sweeper.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	removed  *prometheus.CounterVec
}

func NewJobMetrics(cfg Config) *JobMetrics {
	return newJobMetrics(prometheus.DefaultRegisterer, cfg)
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "novacat_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: labels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "novacat_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: labels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "novacat_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: labels,
		}, []string{"job", "reason"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "novacat_job_items_removed_total",
			Help:        "Items removed by cleanup jobs.",
			ConstLabels: labels,
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.errors, m.removed)
	return m
}

func (m *JobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.errors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
	}
}

func (m *JobMetrics) AddRemoved(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removed.WithLabelValues(job).Add(float64(n))
}

func ClassifyJobReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return JobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return JobReasonCanceled
	default:
		return JobReasonUnknown
	}
}
