// Package metrics provides Prometheus metrics for the browsing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecmdocs_tasks_started_total",
			Help: "Background fetches started, by routine",
		},
		[]string{"routine"},
	)

	tasksSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecmdocs_tasks_settled_total",
			Help: "Background fetches settled, by routine and outcome",
		},
		[]string{"routine", "outcome"},
	)

	tasksDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecmdocs_tasks_deferred_total",
			Help: "Background fetches parked waiting for credentials",
		},
		[]string{"routine"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecmdocs_task_duration_seconds",
			Help:    "Background fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"routine"},
	)

	tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecmdocs_tasks_in_flight",
			Help: "Background fetches currently running",
		},
	)

	sessionConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecmdocs_session_connects_total",
			Help: "Session connect attempts, by account kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecmdocs_content_bytes_downloaded_total",
			Help: "Bytes copied from the repository into the local cache",
		},
	)

	contentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecmdocs_content_requests_total",
			Help: "Content and thumbnail opens, by kind and result (hit, download, cancelled, error)",
		},
		[]string{"kind", "result"},
	)

	cacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ecmdocs_cache_entries",
			Help: "Entries held by the entity cache, by index",
		},
		[]string{"index"},
	)
)

// RecordTaskStarted increments the started counter and the in-flight gauge
func RecordTaskStarted(routine string) {
	tasksStarted.WithLabelValues(routine).Inc()
	tasksInFlight.Inc()
}

// RecordTaskSettled records a finished fetch
func RecordTaskSettled(routine string, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	tasksSettled.WithLabelValues(routine, outcome).Inc()
	taskDuration.WithLabelValues(routine).Observe(d.Seconds())
	tasksInFlight.Dec()
}

// RecordTaskDeferred records a fetch parked until credentials arrive
func RecordTaskDeferred(routine string) {
	tasksDeferred.WithLabelValues(routine).Inc()
	tasksInFlight.Dec()
}

// RecordTaskResumed records a parked fetch running again
func RecordTaskResumed() {
	tasksInFlight.Inc()
}

// RecordSessionConnect records a connect attempt
func RecordSessionConnect(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	sessionConnects.WithLabelValues(kind, outcome).Inc()
}

// RecordContentRequest records an open of kind (content, thumbnail)
func RecordContentRequest(kind, result string) {
	contentRequests.WithLabelValues(kind, result).Inc()
}

// AddBytesDownloaded adds n to the downloaded bytes counter
func AddBytesDownloaded(n int64) {
	contentBytesDownloaded.Add(float64(n))
}

// SetCacheEntries updates the cache size gauges
func SetCacheEntries(nodes, paths, sites, listings int) {
	cacheEntries.WithLabelValues("nodes").Set(float64(nodes))
	cacheEntries.WithLabelValues("paths").Set(float64(paths))
	cacheEntries.WithLabelValues("sites").Set(float64(sites))
	cacheEntries.WithLabelValues("listings").Set(float64(listings))
}

// WriteTextfile writes all registered metrics in the text exposition format,
// for pickup by a node exporter textfile collector
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
