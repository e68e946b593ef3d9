package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages
const (
	StageSweep        = "sweep"
	StagePublications = "publications"
	StageCheck        = "check"
	StageInsert       = "insert"
	StageRender       = "render"
)

var (
	// RecordsCreated counts celebration posts written, by event type
	RecordsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebration_records_created_total",
		Help: "Total number of celebration records created",
	}, []string{"event_type"})

	// RecordsSkipped counts units that already had a record for the day
	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebration_records_skipped_total",
		Help: "Total number of units skipped because a record already existed for the day",
	}, []string{"event_type"})

	UnitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebration_unit_failures_total",
		Help: "Total number of isolated failures, by job stage",
	}, []string{"stage"})

	// Notifications counts dispatch attempts by outcome (sent/error)
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "celebration_notifications_total",
		Help: "Total number of notification dispatch attempts",
	}, []string{"status"})

	RecordsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "celebration_records_expired_total",
		Help: "Total number of records flipped to expired by the sweeper",
	})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "celebration_run_duration_seconds",
		Help:    "Duration of a full celebration run in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// LastRunSuccess is the unix time of the last run that did not fail fatally
	LastRunSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "celebration_last_run_success_timestamp_seconds",
		Help: "Unix timestamp of the last successful celebration run",
	})
)
