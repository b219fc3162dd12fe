package metrics

import "github.com/prometheus/client_golang/prometheus"

// RemoteRequestDurations is a histogram metric of the durations of the http
// requests made to the remote storage APIs, labelled by method and status
// code.
var RemoteRequestDurations = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "multifs",
		Subsystem: "remote",
		Name:      "request_duration_seconds",

		Help: "Durations of the http requests to the remote storage APIs, labelled by method and status code",

		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "code"},
)

// UploadRetries is a counter of the chunks of resumable uploads that have
// been sent again, labelled by the reason.
var UploadRetries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "multifs",
		Subsystem: "remote",
		Name:      "upload_retries_total",

		Help: "Number of chunks of resumable uploads sent again, labelled by reason.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(RemoteRequestDurations, UploadRetries)
}
