package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Backup holds the Prometheus collectors for backup, restore and retention
// activity. A nil *Backup is valid and records nothing.
type Backup struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	size        *prometheus.GaugeVec
	restores    *prometheus.CounterVec
	deletions   *prometheus.CounterVec
	uncovered   *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// NewBackup creates the collectors and registers them with reg.
func NewBackup(reg prometheus.Registerer) *Backup {
	m := &Backup{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbackup_backup_runs_total",
			Help: "Backup runs by project type and final status",
		}, []string{"project_type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hostbackup_backup_duration_seconds",
			Help:    "Time spent producing and storing a backup artifact",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"project_type"}),
		size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hostbackup_backup_size_bytes",
			Help: "Size of the most recent backup artifact",
		}, []string{"project"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbackup_restores_total",
			Help: "Restore attempts by restore type and status",
		}, []string{"restore_type", "status"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hostbackup_retention_deletions_total",
			Help: "Artifacts removed by the retention sweep",
		}, []string{"location"}),
		uncovered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hostbackup_compliance_projects_needing_test",
			Help: "Projects without a passing restore test for the quarter",
		}, []string{"quarter"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hostbackup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful backup per project",
		}, []string{"project"}),
	}

	reg.MustRegister(m.runs, m.duration, m.size, m.restores, m.deletions, m.uncovered, m.lastSuccess)
	return m
}

// ObserveBackup records the outcome of a backup run.
func (m *Backup) ObserveBackup(project, projectType, status string, d time.Duration, size int64, at time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(projectType, status).Inc()
	m.duration.WithLabelValues(projectType).Observe(d.Seconds())
	if status != "failed" {
		m.size.WithLabelValues(project).Set(float64(size))
	}
	if status == "success" {
		m.lastSuccess.WithLabelValues(project).Set(float64(at.Unix()))
	}
}

// ObserveRestore records the outcome of a restore.
func (m *Backup) ObserveRestore(restoreType, status string) {
	if m == nil {
		return
	}
	m.restores.WithLabelValues(restoreType, status).Inc()
}

// ObserveDeletion records an artifact removed from location ("local" or "offsite").
func (m *Backup) ObserveDeletion(location string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(location).Inc()
}

// SetUncovered records how many projects still need a restore test in quarter.
func (m *Backup) SetUncovered(quarter string, n int) {
	if m == nil {
		return
	}
	m.uncovered.WithLabelValues(quarter).Set(float64(n))
}
