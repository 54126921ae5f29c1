package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// InvitesSent counts workspace invitations by outcome (sent|conflict|error).
	InvitesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_workspace_invites_total",
			Help: "Total number of workspace invitations issued",
		},
		[]string{"result"},
	)

	// InvitesAccepted counts invitation acceptances.
	InvitesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_workspace_invites_accepted_total",
			Help: "Total number of workspace invitations accepted",
		},
	)

	// SalesRecorded counts sale transactions by outcome (committed|rejected).
	SalesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_sales_recorded_total",
			Help: "Total number of sale transactions",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tally_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
