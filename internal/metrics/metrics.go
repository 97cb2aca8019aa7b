// Package metrics exposes the tracker's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobtracker_cycles_total",
		Help: "Total number of reconciliation cycles run",
	})
	CycleFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobtracker_cycle_failures_total",
		Help: "Cycles in which the active-job listing failed",
	})
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jobtracker_cycle_duration_seconds",
		Help:    "Wall-clock duration of one reconciliation and admission cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	RunningJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobtracker_running_jobs",
		Help: "Jobs currently tracked in the snapshot",
	})
	QueuedTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobtracker_queued_tasks",
		Help: "Submission requests waiting for admission",
	})
	CompletedJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobtracker_completed_jobs",
		Help: "Jobs recorded in history",
	})
	JobTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtracker_job_transitions_total",
		Help: "Job lifecycle transitions observed",
	}, []string{"transition"})
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtracker_submissions_total",
		Help: "Queued tasks processed by admission, by result",
	}, []string{"result"})
	OutputSearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobtracker_output_searches_total",
		Help: "Output-file searches, by result",
	}, []string{"result"})
	PersistenceErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobtracker_persistence_errors_total",
		Help: "Failed snapshot, history, or archive writes",
	})
)

// Label values.
const (
	TransitionDiscovered = "discovered"
	TransitionFinished   = "finished"

	ResultSubmitted = "submitted"
	ResultFailed    = "failed"
	ResultDropped   = "dropped"

	ResultFound    = "found"
	ResultNotFound = "not_found"
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleFailuresTotal,
		CycleDuration,
		RunningJobs,
		QueuedTasks,
		CompletedJobs,
		JobTransitionsTotal,
		SubmissionsTotal,
		OutputSearchesTotal,
		PersistenceErrorsTotal,
	)
}
