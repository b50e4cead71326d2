package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level so that constructing several services (tests, multiple
// drawers) never registers a collector twice.
var (
	eventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_audit_events_recorded_total",
		Help: "Audit events appended, by action",
	}, []string{"action"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_audit_reconciliations_total",
		Help: "Edit-history reconciliations, by mode (full or edits_only)",
	}, []string{"mode"})

	corruptReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beacon_audit_corrupt_reads_total",
		Help: "Reads of audit_log_v1 that failed to parse and were treated as empty",
	})

	clears = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_audit_clears_total",
		Help: "Destructive clear operations, by scope (campaign or adgroup)",
	}, []string{"scope"})
)

// countRecorded bumps the recorded counter once per event.
func countRecorded(events []AuditEvent) {
	for _, e := range events {
		eventsRecorded.WithLabelValues(string(e.Action)).Inc()
	}
}
