package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cycle and job outcome labels.
const (
	CronOutcomeSuccess = "success"
	CronOutcomeFailure = "failure"
)

// cronBuckets span quick no-op cycles up to a full batch over thousands of donors.
var cronBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400}

// CronJobMetrics records scheduled sync jobs and lease contention.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

// NewCronJobMetrics registers the cron collectors on reg. A nil reg yields a no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_cron_job_duration_seconds",
			Help:    "Wall time of scheduled jobs.",
			Buckets: cronBuckets,
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_cron_job_runs_total",
			Help: "Scheduled job executions by outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_cron_cycles_skipped_total",
			Help: "Cycles skipped because another worker held the lease.",
		}),
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one job execution finishing at end.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, end time.Time, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, CronOutcomeFailure).Inc()
		return
	}
	c.runs.WithLabelValues(job, CronOutcomeSuccess).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(end.Unix()))
}

// CycleSkipped counts a cycle that found the lease taken.
func (c *CronJobMetrics) CycleSkipped() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
