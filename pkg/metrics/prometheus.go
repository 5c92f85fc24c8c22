// Package metrics provides Prometheus metrics for the dropout risk service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// defaultLatencyBuckets are expressed in milliseconds.
var defaultLatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // constant bucket layout

// defaultProbabilityBuckets split [0,1] in tenths so the tier boundaries are visible.
var defaultProbabilityBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} //nolint:gochecknoglobals // constant bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace          string
	subsystem          string
	latencyBuckets     []float64
	probabilityBuckets []float64
	enabled            bool
	refreshInterval    time.Duration
	constLabels        map[string]string
	metricPrefix       string
	registry           prometheus.Registerer

	// Inference Metrics
	predictions           *prometheus.CounterVec
	validationFailures    *prometheus.CounterVec
	inferenceErrors       prometheus.Counter
	inferenceLatency      prometheus.Histogram
	predictedProbability  prometheus.Histogram
	predictionCacheHits   prometheus.Counter
	predictionCacheMisses prometheus.Counter
	artifactInfo          *prometheus.GaugeVec

	// Stats Metrics
	statsRequests prometheus.Counter
	statsErrors   prometheus.Counter
	statsLatency  prometheus.Histogram
	datasetRows   prometheus.Gauge

	// Audit Metrics
	auditWrites      prometheus.Counter
	auditWriteErrors prometheus.Counter
	auditDropped     prometheus.Counter
	auditQueueSize   prometheus.Gauge
	auditQueueCap    prometheus.Gauge
	auditWorkers     prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:          "dropout",
		subsystem:          "risk",
		latencyBuckets:     defaultLatencyBuckets,
		probabilityBuckets: defaultProbabilityBuckets,
		enabled:            true,
		refreshInterval:    defaultRefreshInterval,
		constLabels:        make(map[string]string),
		registry:           prometheus.NewRegistry(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// name applies the optional metric prefix.
func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	// Inference Metrics
	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("predictions_total"),
		Help:        "Total number of successful predictions by risk tier",
		ConstLabels: labels,
	}, []string{"tier"})

	m.validationFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("validation_failures_total"),
		Help:        "Total number of rejected prediction payloads by offending field",
		ConstLabels: labels,
	}, []string{"field"})

	m.inferenceErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("inference_errors_total"),
		Help:        "Total number of internal failures while scoring a valid payload",
		ConstLabels: labels,
	})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("inference_latency_milliseconds"),
		Help:        "Latency of scaler transform plus model prediction in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.predictedProbability = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("predicted_probability"),
		Help:        "Distribution of predicted dropout probabilities",
		Buckets:     m.probabilityBuckets,
		ConstLabels: labels,
	})

	m.predictionCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("prediction_cache_hits_total"),
		Help:        "Total number of predictions served from the feature cache",
		ConstLabels: labels,
	})

	m.predictionCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("prediction_cache_misses_total"),
		Help:        "Total number of predictions computed by the model",
		ConstLabels: labels,
	})

	m.artifactInfo = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("artifact_info"),
		Help:        "Loaded scoring artifacts; value is always 1",
		ConstLabels: labels,
	}, []string{"model_version", "scaler_version", "model_format"})

	// Stats Metrics
	m.statsRequests = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("stats_requests_total"),
		Help:        "Total number of dataset statistics computations",
		ConstLabels: labels,
	})

	m.statsErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("stats_errors_total"),
		Help:        "Total number of failed dataset statistics computations",
		ConstLabels: labels,
	})

	m.statsLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("stats_latency_milliseconds"),
		Help:        "Latency of reading and aggregating the dataset in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})

	m.datasetRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("dataset_rows"),
		Help:        "Number of rows seen by the last successful statistics computation",
		ConstLabels: labels,
	})

	// Audit Metrics
	m.auditWrites = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_writes_total"),
		Help:        "Total number of predictions written to the audit store",
		ConstLabels: labels,
	})

	m.auditWriteErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_write_errors_total"),
		Help:        "Total number of failed audit store writes",
		ConstLabels: labels,
	})

	m.auditDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_dropped_total"),
		Help:        "Total number of audit records dropped because the queue was full or closed",
		ConstLabels: labels,
	})

	m.auditQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_queue_size"),
		Help:        "Audit records waiting to be written",
		ConstLabels: labels,
	})

	m.auditQueueCap = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_queue_capacity"),
		Help:        "Capacity of the audit queue",
		ConstLabels: labels,
	})

	m.auditWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("audit_workers_active"),
		Help:        "Number of running audit writers",
		ConstLabels: labels,
	})

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.latencyBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component and error type",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_type_total"),
			Help:        "Total number of errors by error type and severity",
			ConstLabels: labels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "Total number of errors by endpoint, method and error type",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("error_latency_milliseconds"),
			Help:        "Latency of operations that resulted in errors",
			Buckets:     m.latencyBuckets,
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "Current heap allocation in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Current number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_milliseconds"),
		Help:        "Average GC pause time in milliseconds",
		Buckets:     m.latencyBuckets,
		ConstLabels: labels,
	})
}

// Inference Metrics Functions.

// RecordPrediction increments the prediction counter for tier and observes
// the probability.
func RecordPrediction(tier string, probability float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.predictions.WithLabelValues(tier).Inc()
	globalManager.predictedProbability.Observe(probability)
}

// RecordValidationFailure increments the validation failures counter.
func RecordValidationFailure(field string) {
	if !globalManager.enabled {
		return
	}
	globalManager.validationFailures.WithLabelValues(field).Inc()
}

// RecordInferenceError increments the inference errors counter.
func RecordInferenceError() {
	if !globalManager.enabled {
		return
	}
	globalManager.inferenceErrors.Inc()
}

// RecordInferenceLatency records inference latency in milliseconds.
func RecordInferenceLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordPredictionCacheHit increments the cache hit counter.
func RecordPredictionCacheHit() {
	if !globalManager.enabled {
		return
	}
	globalManager.predictionCacheHits.Inc()
}

// RecordPredictionCacheMiss increments the cache miss counter.
func RecordPredictionCacheMiss() {
	if !globalManager.enabled {
		return
	}
	globalManager.predictionCacheMisses.Inc()
}

// SetArtifactInfo publishes the loaded artifact versions.
func SetArtifactInfo(modelVersion, scalerVersion, modelFormat string) {
	globalManager.artifactInfo.Reset()
	globalManager.artifactInfo.WithLabelValues(modelVersion, scalerVersion, modelFormat).Set(1)
}

// Stats Metrics Functions.

// RecordStatsRequest increments the stats request counter and records latency.
func RecordStatsRequest(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.statsRequests.Inc()
	globalManager.statsLatency.Observe(latencyMs)
}

// RecordStatsError increments the stats error counter.
func RecordStatsError() {
	if !globalManager.enabled {
		return
	}
	globalManager.statsErrors.Inc()
}

// UpdateDatasetRows sets the dataset row gauge.
func UpdateDatasetRows(rows int) {
	globalManager.datasetRows.Set(float64(rows))
}

// Audit Metrics Functions.

// RecordAuditWrite increments the audit write counter.
func RecordAuditWrite() {
	if !globalManager.enabled {
		return
	}
	globalManager.auditWrites.Inc()
}

// RecordAuditWriteError increments the audit write error counter.
func RecordAuditWriteError() {
	if !globalManager.enabled {
		return
	}
	globalManager.auditWriteErrors.Inc()
}

// RecordAuditDropped increments the dropped audit record counter.
func RecordAuditDropped() {
	if !globalManager.enabled {
		return
	}
	globalManager.auditDropped.Inc()
}

// UpdateAuditQueueSize sets the number of queued audit records.
func UpdateAuditQueueSize(size int) {
	globalManager.auditQueueSize.Set(float64(size))
}

// UpdateAuditQueueCapacity sets the audit queue capacity.
func UpdateAuditQueueCapacity(capacity int) {
	globalManager.auditQueueCap.Set(float64(capacity))
}

// UpdateAuditWorkers sets the number of running audit writers.
func UpdateAuditWorkers(count int) {
	globalManager.auditWorkers.Set(float64(count))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval reports how often gauges should be refreshed by callers.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
