package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels recorded on PublishTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeConnectError = "connect_error"
	OutcomeRejected     = "rejected"
)

var (
	// PublishTotal counts publish attempts by destination and outcome.
	PublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "publisher",
		Name:      "publish_total",
		Help:      "Publish attempts by destination and outcome.",
	}, []string{"destination", "outcome"})

	// PublishDuration observes end-to-end publish latency, connection setup
	// included.
	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hub",
		Subsystem: "publisher",
		Name:      "publish_duration_seconds",
		Help:      "End-to-end publish latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"destination"})

	// HTTPRequestsTotal counts ingress requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hub",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
)
