// Package metrics registers the daemon's prometheus instrumentation,
// exposed at GET /api/metrics (§4.9.1). Grounded on the retrieved pack's
// GitOps-style reconciler, which wires client_golang counters/histograms
// around its reconcile loop the same way this daemon wires them around
// commit/fetch cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the daemon publishes.
type Metrics struct {
	Registry *prometheus.Registry

	CommitsTotal       prometheus.Counter
	CommitFailures     prometheus.Counter
	PushesTotal        prometheus.Counter
	PushFailures       prometheus.Counter
	FetchesTotal       prometheus.Counter
	FetchFailures      prometheus.Counter
	MergeConflicts     prometheus.Counter
	RebuildDuration    prometheus.Histogram
	SSESubscribers     prometheus.Gauge
	EventsWrittenTotal prometheus.Counter
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_commits_total",
			Help: "Total number of event-store commits attempted.",
		}),
		CommitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_commit_failures_total",
			Help: "Total number of event-store commits that failed.",
		}),
		PushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_pushes_total",
			Help: "Total number of git pushes attempted.",
		}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_push_failures_total",
			Help: "Total number of git pushes that failed after retries.",
		}),
		FetchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_fetches_total",
			Help: "Total number of periodic fetches attempted.",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_fetch_failures_total",
			Help: "Total number of periodic fetches that failed.",
		}),
		MergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_merge_conflicts_total",
			Help: "Total number of fetch/merge or rebase attempts that surfaced a conflict.",
		}),
		RebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sparkle_aggregate_rebuild_duration_seconds",
			Help:    "Duration of full aggregate rebuilds.",
			Buckets: prometheus.DefBuckets,
		}),
		SSESubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sparkle_sse_subscribers",
			Help: "Current number of connected SSE subscribers.",
		}),
		EventsWrittenTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sparkle_events_written_total",
			Help: "Total number of event files written by this daemon.",
		}),
	}
}
