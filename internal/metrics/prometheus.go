package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the rating service

var (
	// Job metrics
	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soccerview_job_runs_total",
			Help: "Total number of recalculation and snapshot runs",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soccerview_job_duration_seconds",
			Help:    "Duration of job runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	// Recalculation metrics
	RecalcPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soccerview_recalc_phase_duration_seconds",
			Help:    "Duration of recalculation phases in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soccerview_replay_matches_total",
			Help: "Match records seen by the season replay, by disposition",
		},
		[]string{"disposition"},
	)

	TeamsRated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soccerview_teams_rated",
			Help: "Teams with at least one eligible match in the last recalculation",
		},
	)

	TeamsRanked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soccerview_teams_ranked",
			Help: "Teams holding a rank after the last recalculation",
		},
		[]string{"scope"},
	)

	// Bulk write metrics
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soccerview_write_pages_total",
			Help: "Total number of bulk write pages",
		},
		[]string{"kind", "status"},
	)

	// Snapshot metrics
	SnapshotRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soccerview_snapshot_rows_written_total",
			Help: "Total number of rank snapshot rows upserted",
		},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soccerview_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "soccerview_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soccerview_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// Database metrics
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soccerview_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soccerview_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "soccerview_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soccerview_last_successful_run_timestamp",
			Help: "Timestamp of the last successful job run",
		},
		[]string{"job"},
	)
)

// RecordRun records the outcome of a job run
func RecordRun(job, status string, duration float64) {
	JobRunsTotal.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(duration)

	if status == "success" {
		LastSuccessfulRun.WithLabelValues(job).SetToCurrentTime()
	}
}

// RecordPhase records how long one recalculation phase took
func RecordPhase(phase string, duration float64) {
	RecalcPhaseDuration.WithLabelValues(phase).Observe(duration)
}

// RecordReplay records match dispositions of a replay
func RecordReplay(applied, outOfWindow, skipped int) {
	MatchesTotal.WithLabelValues("applied").Add(float64(applied))
	MatchesTotal.WithLabelValues("out_of_window").Add(float64(outOfWindow))
	MatchesTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// UpdateRankingStats updates gauges describing the last recalculation
func UpdateRankingStats(rated, national, regional int) {
	TeamsRated.Set(float64(rated))
	TeamsRanked.WithLabelValues("national").Set(float64(national))
	TeamsRanked.WithLabelValues("regional").Set(float64(regional))
}

// RecordPages records written and failed pages of a bulk write
func RecordPages(kind string, ok, failed int) {
	PagesTotal.WithLabelValues(kind, "success").Add(float64(ok))
	PagesTotal.WithLabelValues(kind, "error").Add(float64(failed))
}

// RecordSnapshotRows records snapshot rows written
func RecordSnapshotRows(n int) {
	SnapshotRowsWritten.Add(float64(n))
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(active, idle int32) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
