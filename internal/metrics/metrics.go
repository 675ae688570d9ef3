// Package metrics registers the prometheus counters and histogram
// spec.md §6 names for GET /metrics; no gauge is registered.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestInitTotal counts POST /v1/upload/init calls.
	IngestInitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_ingest_init_total",
		Help: "Total number of upload init requests.",
	})

	// IngestCompleteTotal counts POST /v1/upload/complete calls by result:
	// new, dedup, hash_mismatch, expired.
	IngestCompleteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evidence_ingest_complete_total",
		Help: "Total number of upload complete requests by result.",
	}, []string{"result"})

	// IPFSPinFailuresTotal counts soft IPFS pin failures during complete
	// (spec.md §4.8.3 S9 — never fails the request).
	IPFSPinFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_ipfs_pin_failures_total",
		Help: "Total number of secondary-replica pin failures (never surfaced to the caller).",
	})

	// DownloadTotal counts resolved artifact downloads.
	DownloadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evidence_download_total",
		Help: "Total number of artifact download redirects issued.",
	})

	// HashDurationSeconds observes the wall-clock time spent streaming an
	// object through the digest engine.
	HashDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evidence_hash_duration_seconds",
		Help:    "Time spent streaming an object through the digest engine.",
		Buckets: prometheus.DefBuckets,
	})
)
