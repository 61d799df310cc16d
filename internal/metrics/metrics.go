package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drive call metrics. Outcome is the classified error kind, or "success".
var (
	DriveRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_requests_total",
			Help: "Total blob-storage API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	DriveRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drive_request_duration_seconds",
			Help:    "Duration of blob-storage API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	UploadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_upload_retries_total",
			Help: "Resumable upload attempts retried after an incomplete transfer",
		},
	)

	PredictionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_requests_total",
			Help: "Total diagnostic prediction API calls by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveDrive records one blob-storage call.
func ObserveDrive(operation, outcome string, start time.Time) {
	DriveRequestsTotal.WithLabelValues(operation, outcome).Inc()
	DriveRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
