package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsCountsRunsAndPrunedRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveRun("outbox-retention", 30*time.Millisecond, nil)
	m.ObserveRun("outbox-retention", 10*time.Millisecond, errors.New("boom"))
	m.AddPruned("outbox_events", 4)
	m.AddPruned("outbox_events", 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "maintenance_job_runs_total", "result", JobResultFailure)
	require.NoError(t, err)
	require.Equal(t, float64(1), got)

	sum, err := fetchHistogramSum(mfs, "maintenance_job_duration_seconds", "job", "outbox-retention")
	require.NoError(t, err)
	require.InDelta(t, 0.04, sum, 0.0001)

	got, err = fetchCounterValue(mfs, "maintenance_rows_pruned_total", "table", "outbox_events")
	require.NoError(t, err)
	require.Equal(t, float64(4), got)
}

func TestJobMetricsNilSafe(t *testing.T) {
	var m *JobMetrics
	m.ObserveRun("x", time.Second, nil)
	m.AddPruned("x", 1)
	NewJobMetrics(nil).ObserveRun("x", time.Second, nil)
}
