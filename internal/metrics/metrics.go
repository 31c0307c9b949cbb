// Package metrics registers the Prometheus instruments for the delivery pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_enqueued_total",
			Help: "Notifications accepted by the delivery engine",
		},
		[]string{"class"}, // ephemeral, persistent
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dropped_total",
			Help: "Notifications abandoned without delivery",
		},
		[]string{"class", "reason"}, // no_subscriptions, expired, retries_exhausted
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_delivered_total",
			Help: "Notifications delivered to at least one endpoint",
		},
		[]string{"class"},
	)

	PushAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_push_attempts_total",
			Help: "Push transport calls by outcome",
		},
		[]string{"result"}, // sent, gone, transient
	)

	SubscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_subscriptions_pruned_total",
			Help: "Subscriptions removed after a permanent transport failure",
		},
	)

	DrainDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_drain_duration_seconds",
			Help:    "Wall-clock duration of a drain pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"}, // all, user
	)

	DrainsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_drains_skipped_total",
			Help: "Drain requests rejected because a pass was already running",
		},
	)

	CleanupDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_cleanup_deleted_total",
			Help: "Offline notifications removed by the cleanup job",
		},
		[]string{"reason"}, // expired, delivered
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notify_push_circuit_breaker_state",
			Help: "Push host circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"host"},
	)
)
