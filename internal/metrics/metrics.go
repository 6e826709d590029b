// Package metrics holds the Prometheus collectors shared by the pipeline and the HTTP layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	WebhookEvents    *prometheus.CounterVec
	RateLimited      prometheus.Counter
	GraphWrites      *prometheus.CounterVec
	WriteRetries     prometheus.Counter
	BatchDuration    prometheus.Histogram
	SyncConflicts    prometheus.Counter
	QueryFailures    *prometheus.CounterVec
	ConnectionErrors prometheus.Counter
}

// New registers every collector on a fresh registry so tests never collide.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "webhook_events_total",
			Help:      "Webhook events accepted, by normalized type.",
		}, []string{"type"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "webhook_rate_limited_total",
			Help:      "Webhook events rejected by per-connection admission.",
		}),
		GraphWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "graph_writes_total",
			Help:      "Graph store writes, by outcome.",
		}, []string{"outcome"}),
		WriteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "graph_write_retries_total",
			Help:      "Event writes retried after a failure.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "graphsync",
			Name:      "batch_group_seconds",
			Help:      "Wall time of one concurrent batch group.",
			Buckets:   prometheus.DefBuckets,
		}),
		SyncConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "sync_conflicts_total",
			Help:      "Sync triggers refused because a recent job is active.",
		}),
		QueryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "query_failures_total",
			Help:      "Queries that degraded to a fallback result, by query type.",
		}, []string{"type"}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graphsync",
			Name:      "connection_update_errors_total",
			Help:      "Connection status updates that failed.",
		}),
	}
	m.registry.MustRegister(
		m.WebhookEvents,
		m.RateLimited,
		m.GraphWrites,
		m.WriteRetries,
		m.BatchDuration,
		m.SyncConflicts,
		m.QueryFailures,
		m.ConnectionErrors,
	)
	return m
}

// Registry exposes the underlying registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
