package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts counts HTTP attempts by parse mode
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsreader_fetch_attempts_total",
			Help: "Total number of fetch attempts, including retries",
		},
		[]string{"mode"},
	)

	// FetchRetries counts scheduled retries and how many superseded a pending one
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsreader_fetch_retries_total",
			Help: "Total number of retries scheduled after a transport error",
		},
		[]string{"mode", "coalesced"},
	)

	// FetchFailures counts requests abandoned by error class
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsreader_fetch_failures_total",
			Help: "Total number of fetches that ended in failure",
		},
		[]string{"mode", "error_type"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "newsreader_fetch_latency_seconds",
			Help:    "Latency of a single fetch attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)
