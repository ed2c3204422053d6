package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded by MaintenanceMetrics
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	maintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_maintenance_runs_total",
			Help: "Lead maintenance runs partitioned by operator and outcome",
		},
		[]string{"operator", "outcome"},
	)

	maintenanceAffectedLeads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_maintenance_affected_leads_total",
			Help: "Leads escalated or purged by maintenance runs",
		},
		[]string{"operator"},
	)

	maintenanceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_maintenance_run_duration_seconds",
			Help:    "Duration of lead maintenance runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operator"},
	)
)

// MaintenanceMetrics records one observation per maintenance run
type MaintenanceMetrics interface {
	ObserveRun(operator, outcome string, affected int, elapsed time.Duration)
}

// PrometheusMaintenanceMetrics writes to the process-wide Prometheus registry
type PrometheusMaintenanceMetrics struct{}

func (PrometheusMaintenanceMetrics) ObserveRun(operator, outcome string, affected int, elapsed time.Duration) {
	maintenanceRunsTotal.WithLabelValues(operator, outcome).Inc()
	if affected > 0 {
		maintenanceAffectedLeads.WithLabelValues(operator).Add(float64(affected))
	}
	maintenanceRunDuration.WithLabelValues(operator).Observe(elapsed.Seconds())
}
