package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics, registered on the default registry and exposed by
// the ops server's /metrics endpoint.
var (
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "pages_fetched_total",
		Help:      "Search-result pages fetched, by category and outcome.",
	}, []string{"category", "outcome"})

	ListingsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "listings_extracted_total",
		Help:      "Listing detail fetches, by category and outcome.",
	}, []string{"category", "outcome"})

	Batches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "batches_total",
		Help:      "Processed batches, by stage and result.",
	}, []string{"stage", "result"})

	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "retry_attempts_total",
		Help:      "Scheduled re-attempts after retryable failures, by stage.",
	}, []string{"stage"})

	Watermark = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "harvest",
		Name:      "watermark",
		Help:      "Highest processed listing id, by category.",
	}, []string{"category"})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harvest",
		Name:      "fetch_duration_seconds",
		Help:      "Upstream request latency, by stage.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	SnapshotBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvest",
		Name:      "snapshot_bytes_total",
		Help:      "Raw snapshot bytes written, by category.",
	}, []string{"category"})
)
