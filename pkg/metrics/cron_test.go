package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	end := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	const job = "donation-sync:live"

	m.ObserveRun(job, 90*time.Second, end, nil)
	m.ObserveRun(job, 5*time.Second, end.Add(time.Hour), errors.New("stripe down"))
	m.CycleSkipped()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, CronOutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, CronOutcomeFailure)))
	assert.Equal(t, float64(end.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)), "failed run keeps the last success")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.skipped))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	var count uint64
	for _, mf := range mfs {
		if mf.GetName() != "ledger_cron_job_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			sum += metric.GetHistogram().GetSampleSum()
			count += metric.GetHistogram().GetSampleCount()
		}
	}
	assert.InDelta(t, 95, sum, 0.001)
	assert.Equal(t, uint64(2), count)
}

func TestCronJobMetricsBlankJobLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.ObserveRun("", time.Second, time.Now(), errors.New("boom"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("unknown", CronOutcomeFailure)))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("x", time.Second, time.Now(), nil)
	m.CycleSkipped()
	NewCronJobMetrics(nil).ObserveRun("", time.Second, time.Now(), errors.New("x"))
	NewCronJobMetrics(nil).CycleSkipped()
}
