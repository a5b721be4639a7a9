package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobResultSuccess = "success"
	JobResultFailure = "failure"
)

// JobMetrics records maintenance job runs and the rows they prune.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pruned   *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by result.",
	}, []string{"job", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	pruned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_rows_pruned_total",
		Help: "Rows removed by maintenance jobs.",
	}, []string{"table"})
	reg.MustRegister(runs, duration, pruned)
	return &JobMetrics{runs: runs, duration: duration, pruned: pruned}
}

// ObserveRun records one job execution.
func (j *JobMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if j == nil || j.runs == nil {
		return
	}
	result := JobResultSuccess
	if err != nil {
		result = JobResultFailure
	}
	name := normalizeLabel(job)
	j.runs.WithLabelValues(name, result).Inc()
	j.duration.WithLabelValues(name).Observe(duration.Seconds())
}

func (j *JobMetrics) AddPruned(table string, rows int64) {
	if j == nil || j.pruned == nil || rows <= 0 {
		return
	}
	j.pruned.WithLabelValues(normalizeLabel(table)).Add(float64(rows))
}
