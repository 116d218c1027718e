// Package metrics provides Prometheus metrics for the histsync migration engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the migration engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Catalog metrics
	pointsFound   *prometheus.GaugeVec
	pointsCreated prometheus.Counter
	pagesFetched  *prometheus.CounterVec

	// Value copy metrics
	valuesCopied       prometheus.Counter
	pointsCopied       prometheus.Counter
	pointsSkipped      prometheus.Counter
	pointWriteFailures prometheus.Counter
	pointCopyLatency   prometheus.Histogram
	storeCallLatency   *prometheus.HistogramVec
	storeCallErrors    *prometheus.CounterVec

	// Run metrics
	runDuration       prometheus.Histogram
	runsTotal         *prometheus.CounterVec
	searchAttempts    prometheus.Histogram
	searchResults     *prometheus.CounterVec
	archiveUploads    *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "histsync",
		subsystem:        "migration",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.pointsFound = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("points_found"),
		Help: "Number of points matching the migration query, by side",
	}, []string{"side"})

	m.pointsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("points_created_total"),
		Help: "Total number of points created on the destination",
	})

	m.pagesFetched = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("pages_fetched_total"),
		Help: "Total number of catalog pages fetched, by side",
	}, []string{"side"})

	m.valuesCopied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("values_copied_total"),
		Help: "Total number of values written to the destination",
	})

	m.pointsCopied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("points_copied_total"),
		Help: "Total number of points whose values were copied",
	})

	m.pointsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("points_skipped_total"),
		Help: "Total number of points already migrated for the requested range",
	})

	m.pointWriteFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("point_write_failures_total"),
		Help: "Total number of points whose value write reported failures",
	})

	m.pointCopyLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("point_copy_latency_milliseconds"),
		Help:    "Latency of a single point value sync in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.storeCallLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("store_call_latency_milliseconds"),
		Help:    "Latency of historian store calls in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"store", "op"})

	m.storeCallErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("store_call_errors_total"),
		Help: "Total number of failed historian store calls",
	}, []string{"store", "op"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("run_duration_seconds"),
		Help:    "Duration of complete migration runs in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
	})

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("runs_total"),
		Help: "Total number of migration runs by outcome",
	}, []string{"outcome"})

	m.searchAttempts = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("search_windows"),
		Help:    "Number of windows queried per backward search",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 12, 16},
	})

	m.searchResults = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("search_results_total"),
		Help: "Total number of backward searches by outcome",
	}, []string{"outcome"})

	m.archiveUploads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("archive_uploads_total"),
		Help: "Total number of report archive writes by backend and outcome",
	}, []string{"backend", "outcome"})

	m.notificationsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("notifications_total"),
		Help: "Total number of notifications by transport and outcome",
	}, []string{"transport", "outcome"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_size"),
		Help: "Current number of point jobs waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_capacity"),
		Help: "Maximum number of point jobs the queue holds",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Queue utilization ratio (0.0 to 1.0)",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_enqueued_total"),
		Help: "Total number of point jobs enqueued",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_dequeued_total"),
		Help: "Total number of point jobs dequeued",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("queue_rejected_total"),
		Help: "Total number of point jobs rejected by the queue",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_active_count"),
		Help: "Number of copy workers currently running",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "Worker job processing latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("worker_errors_total"),
		Help: "Total number of worker job errors",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_component_total"),
		Help: "Total number of errors by component and error type",
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("system_memory_usage_bytes"),
		Help: "Heap bytes allocated by the process",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("system_goroutines"),
		Help: "Number of running goroutines",
	})

	m.systemGCPauseTime = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("system_gc_pause_milliseconds"),
		Help: "Average GC pause time in milliseconds",
	})
}

// Catalog Metrics Functions.

// UpdatePointsFound sets the number of matching points seen on one side.
func UpdatePointsFound(side string, count int) {
	globalManager.pointsFound.WithLabelValues(side).Set(float64(count))
}

// RecordPointsCreated adds n to the created points counter.
func RecordPointsCreated(n int) {
	globalManager.pointsCreated.Add(float64(n))
}

// RecordPageFetched increments the fetched pages counter for a side.
func RecordPageFetched(side string) {
	globalManager.pagesFetched.WithLabelValues(side).Inc()
}

// Value Copy Metrics Functions.

// RecordValuesCopied adds n to the copied values counter.
func RecordValuesCopied(n int) {
	globalManager.valuesCopied.Add(float64(n))
}

// RecordPointCopied increments the copied points counter.
func RecordPointCopied() {
	globalManager.pointsCopied.Inc()
}

// RecordPointSkipped increments the skipped points counter.
func RecordPointSkipped() {
	globalManager.pointsSkipped.Inc()
}

// RecordPointWriteFailure increments the point write failure counter.
func RecordPointWriteFailure() {
	globalManager.pointWriteFailures.Inc()
}

// RecordPointCopyLatency records the latency of one point sync.
func RecordPointCopyLatency(latencyMs float64) {
	globalManager.pointCopyLatency.Observe(latencyMs)
}

// RecordStoreCall records the latency and outcome of a store call.
func RecordStoreCall(store, op string, latencyMs float64, err error) {
	globalManager.storeCallLatency.WithLabelValues(store, op).Observe(latencyMs)
	if err != nil {
		globalManager.storeCallErrors.WithLabelValues(store, op).Inc()
	}
}

// RecordRun records a finished run.
func RecordRun(outcome string, duration time.Duration) {
	globalManager.runsTotal.WithLabelValues(outcome).Inc()
	globalManager.runDuration.Observe(duration.Seconds())
}

// RecordSearch records a finished backward search.
func RecordSearch(outcome string, windows int) {
	globalManager.searchResults.WithLabelValues(outcome).Inc()
	globalManager.searchAttempts.Observe(float64(windows))
}

// RecordArchive records a report archive write.
func RecordArchive(backend, outcome string) {
	globalManager.archiveUploads.WithLabelValues(backend, outcome).Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(transport, outcome string) {
	globalManager.notificationsSent.WithLabelValues(transport, outcome).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected increments the rejected job counter.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime sets the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Set(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
