// Package metrics exposes prometheus counters and histograms for the
// billing, cache, and notification subsystems on a /metrics endpoint,
// mirroring the teacher's dashboard_metrics_service.go reporting role
// but via prometheus/client_golang instead of a DB-backed rollup.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labrinth_webhook_events_total",
		Help: "Stripe webhook events processed, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	ChargeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labrinth_charge_attempts_total",
		Help: "Charge payment attempts made by the reconciliation loop, by outcome.",
	}, []string{"outcome"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labrinth_refunds_total",
		Help: "Refunds issued, by kind.",
	}, []string{"kind"})

	ReconcileLoopDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labrinth_reconcile_loop_duration_seconds",
		Help:    "Wall time of one reconciliation loop pass, by loop name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})

	EmailDeliveryOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labrinth_email_delivery_outcomes_total",
		Help: "Email delivery attempts, by outcome.",
	}, []string{"outcome"})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labrinth_cache_lookups_total",
		Help: "Project-read cache lookups, by kind and hit/miss.",
	}, []string{"kind", "result"})

	AggregateReadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labrinth_aggregate_read_duration_seconds",
		Help:    "Wall time of the cached aggregate project-read path, by cache result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"cache_result"})
)
