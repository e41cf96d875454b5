// Package metrics exposes prometheus counters for the domain operations the
// API serves. Counters use the default registry and are scraped at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts sessions accepted by create.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainhub_sessions_created_total",
		Help: "Number of training sessions created.",
	})

	// Transitions counts session state changes by target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainhub_session_transitions_total",
		Help: "Number of session state transitions.",
	}, []string{"to"})

	// AttendanceRecorded counts ledger writes by attendance status.
	AttendanceRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainhub_attendance_records_total",
		Help: "Number of attendance records written.",
	}, []string{"status"})

	// SignatureRequests counts signature requests issued.
	SignatureRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainhub_signature_requests_total",
		Help: "Number of signature requests issued.",
	})

	// SignaturesRecorded counts individual signatures received.
	SignaturesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainhub_signatures_recorded_total",
		Help: "Number of participant signatures recorded.",
	})

	// RequestsExpired counts signature requests closed by the expiry sweep.
	RequestsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainhub_signature_requests_expired_total",
		Help: "Number of signature requests expired by the sweep.",
	})
)
