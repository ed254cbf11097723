package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	manifestSyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_manifest_sync_failed_total",
			Help: "Total number of failed manifest repository sync operations",
		},
		[]string{"repo"},
	)

	manifestSyncCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_manifest_sync_count_total",
			Help: "Total number of manifest repository sync operations",
		},
		[]string{"repo"},
	)

	manifestSyncNoChange = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lodestar_manifest_sync_nochange_total",
			Help: "Total number of sync operations that found the manifest already up to date",
		},
		[]string{"repo"},
	)

	manifestSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lodestar_manifest_sync_duration_seconds",
			Help:    "Manifest repository sync duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"repo"},
	)
)

func ManifestSyncStarted(repo string) {
	manifestSyncCount.WithLabelValues(repo).Inc()
}

func ManifestSyncSucceeded(repo string, startTime time.Time) {
	manifestSyncDuration.WithLabelValues(repo).Observe(time.Since(startTime).Seconds())
}

func ManifestSyncNoChange(repo string) {
	manifestSyncNoChange.WithLabelValues(repo).Inc()
}

func ManifestSyncFailed(repo string) {
	manifestSyncFailed.WithLabelValues(repo).Inc()
}
