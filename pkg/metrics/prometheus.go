// Package metrics provides Prometheus metrics for the boxboard leaderboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultSampleInterval = 10 * time.Second
)

// Lookup results recorded by RecordSnapshotLookup.
const (
	LookupHit             = "hit"
	LookupMiss            = "miss"
	LookupStale           = "stale"
	LookupVersionMismatch = "version_mismatch"
)

// Build statuses recorded by RecordSnapshotBuild.
const (
	BuildSuccess       = "success"
	BuildComputeFailed = "compute_failed"
	BuildInvalidResult = "invalid_result"
	BuildStoreFailed   = "store_failed"
)

// Manager manages all Prometheus metrics for the boxboard service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	sampleInterval time.Duration
	constLabels    map[string]string
	namePrefix     string
	registry       prometheus.Registerer

	// Snapshot cache
	snapshotLookups   *prometheus.CounterVec
	snapshotBuilds    *prometheus.CounterVec
	buildLatency      prometheus.Histogram
	buildsCoalesced   prometheus.Counter
	snapshotsPruned   prometheus.Counter
	snapshotsStored   prometheus.Gauge
	batchOutcomes     *prometheus.CounterVec
	storeOpLatency    *prometheus.HistogramVec
	tableSorts        prometheus.Counter
	tableRenderErrors prometheus.Counter

	// Refresh queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	refreshCoalesced   prometheus.Counter

	// Refresh workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegisterer(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "boxboard",
		subsystem:      "leaderboard",
		latencyBuckets: prometheus.DefBuckets,
		enabled:        true,
		sampleInterval: defaultSampleInterval,
		constLabels:    make(map[string]string),
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.namePrefix + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.latencyBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.snapshotLookups = auto.NewCounterVec(
		m.counterOpts("snapshot_lookups_total", "Snapshot cache lookups by result"),
		[]string{"result"},
	)
	m.snapshotBuilds = auto.NewCounterVec(
		m.counterOpts("snapshot_builds_total", "Snapshot builds by status"),
		[]string{"status"},
	)
	m.buildLatency = auto.NewHistogram(
		m.histogramOpts("snapshot_build_latency_milliseconds", "Full rebuild latency (compute, normalize, persist) in milliseconds"),
	)
	m.buildsCoalesced = auto.NewCounter(
		m.counterOpts("snapshot_builds_coalesced_total", "Callers that joined an in-flight build instead of starting one"),
	)
	m.snapshotsPruned = auto.NewCounter(
		m.counterOpts("snapshots_pruned_total", "Snapshots removed by retention pruning or rollback"),
	)
	m.snapshotsStored = auto.NewGauge(
		m.gaugeOpts("snapshots_stored", "Snapshots currently held by the in-memory store"),
	)
	m.batchOutcomes = auto.NewCounterVec(
		m.counterOpts("batch_rebuild_keys_total", "Per stat key outcomes of batch rebuilds"),
		[]string{"outcome"},
	)
	m.storeOpLatency = auto.NewHistogramVec(
		m.histogramOpts("store_operation_latency_milliseconds", "Snapshot store operation latency in milliseconds"),
		[]string{"driver", "op"},
	)
	m.tableSorts = auto.NewCounter(
		m.counterOpts("table_sorts_total", "Render model sorts applied"),
	)
	m.tableRenderErrors = auto.NewCounter(
		m.counterOpts("table_render_errors_total", "Render requests that produced no data"),
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("refresh_queue_size", "Pending background refresh jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("refresh_queue_capacity", "Refresh queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("refresh_queue_utilization_ratio", "Refresh queue utilization (0-1)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("refresh_queue_enqueued_total", "Refresh jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("refresh_queue_dequeued_total", "Refresh jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("refresh_queue_enqueue_errors_total", "Refresh jobs rejected by the queue"))
	m.refreshCoalesced = auto.NewCounter(m.counterOpts("refresh_jobs_coalesced_total", "Refresh requests dropped because one was already pending"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("refresh_worker_count", "Configured refresh workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("refresh_workers_active", "Refresh workers currently running a job"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("refresh_workers_idle", "Refresh workers waiting for a job"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("refresh_worker_processing_latency_milliseconds", "Refresh job processing latency in milliseconds"),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("refresh_worker_errors_total", "Refresh jobs that failed"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds"))
}

// SampleInterval is how often callers should refresh sampled gauges.
func (m *Manager) SampleInterval() time.Duration { return m.sampleInterval }

// Enabled reports whether recording is on.
func (m *Manager) Enabled() bool { return m.enabled }

// Global returns the process-wide manager.
func Global() *Manager { return globalManager }

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordSnapshotLookup counts a cache lookup by result.
func RecordSnapshotLookup(result string) {
	if on() {
		globalManager.snapshotLookups.WithLabelValues(result).Inc()
	}
}

// RecordSnapshotBuild counts a build by status and, on success, its latency.
func RecordSnapshotBuild(status string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.snapshotBuilds.WithLabelValues(status).Inc()
	if status == BuildSuccess {
		globalManager.buildLatency.Observe(latencyMs)
	}
}

// RecordBuildCoalesced counts a caller that shared another caller's build.
func RecordBuildCoalesced() {
	if on() {
		globalManager.buildsCoalesced.Inc()
	}
}

// RecordSnapshotsPruned adds n removed snapshots.
func RecordSnapshotsPruned(n int) {
	if on() && n > 0 {
		globalManager.snapshotsPruned.Add(float64(n))
	}
}

// UpdateSnapshotsStored sets the in-memory snapshot count.
func UpdateSnapshotsStored(n int) {
	if on() {
		globalManager.snapshotsStored.Set(float64(n))
	}
}

// RecordBatchOutcome counts one stat key of a batch rebuild.
func RecordBatchOutcome(built bool) {
	if !on() {
		return
	}
	outcome := "failed"
	if built {
		outcome = "built"
	}
	globalManager.batchOutcomes.WithLabelValues(outcome).Inc()
}

// RecordStoreOpLatency records the latency of a store operation.
func RecordStoreOpLatency(driver, op string, latencyMs float64) {
	if on() {
		globalManager.storeOpLatency.WithLabelValues(driver, op).Observe(latencyMs)
	}
}

// RecordTableSort counts a render model sort.
func RecordTableSort() {
	if on() {
		globalManager.tableSorts.Inc()
	}
}

// RecordTableRenderError counts a render request that produced no data.
func RecordTableRenderError() {
	if on() {
		globalManager.tableRenderErrors.Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// RecordRefreshCoalesced counts a refresh request dropped as a duplicate.
func RecordRefreshCoalesced() {
	if on() {
		globalManager.refreshCoalesced.Inc()
	}
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if on() {
		globalManager.workerIdleCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
