package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline runs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	postings  *prometheus.CounterVec
	movements *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the pipeline metrics against the provided registerer.
// When the registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given pipeline name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddPosting counts one order posting outcome.
func (m *Metrics) AddPosting(pipeline, state, outcome string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(pipeline, state, outcome).Inc()
}

// AddMovements counts posted drift movements by direction.
func (m *Metrics) AddMovements(direction string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.movements.WithLabelValues(direction).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_pipeline_runs_total",
		Help: "Total pipeline executions partitioned by pipeline and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_pipeline_failures_total",
		Help: "Total failed pipeline executions.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldsync_pipeline_duration_seconds",
		Help:    "Duration in seconds of pipeline executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_order_postings_total",
		Help: "Order postings grouped by pipeline, state and outcome.",
	}, []string{"pipeline", "state", "outcome"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_drift_movements_total",
		Help: "Drift corrections posted to the field system by direction.",
	}, []string{"direction"})
	registerer.MustRegister(runs, failures, duration, postings, movements)
	return &Metrics{runs: runs, failures: failures, duration: duration, postings: postings, movements: movements}
}
