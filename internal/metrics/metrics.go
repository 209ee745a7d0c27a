package metrics

import (
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kenneth/identity-helper/internal/crypto"
	"github.com/kenneth/identity-helper/internal/storage"
)

// Envelope outcomes recorded per operation.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // signed FAIL response
	OutcomeError    = "error"    // hard error, no signed response
)

// Metrics holds all application metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	httpRequestBytes        *prometheus.CounterVec
	storageOperationsTotal  *prometheus.CounterVec
	storageOperationLatency *prometheus.HistogramVec
	storageOperationErrors  *prometheus.CounterVec
	archivesTotal           prometheus.Counter
	archiveCacheLookups     *prometheus.CounterVec
	oracleOperationsTotal   *prometheus.CounterVec
	oracleOperationLatency  *prometheus.HistogramVec
	oracleOperationErrors   *prometheus.CounterVec
	envelopesTotal          *prometheus.CounterVec
	activeConnections       prometheus.Gauge
	goroutines              prometheus.Gauge
	memoryAllocBytes        prometheus.Gauge
	memorySysBytes          prometheus.Gauge
}

// NewMetrics creates a new metrics instance on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry creates a metrics instance on a custom registry.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	return newMetrics(reg, reg)
}

func newMetrics(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP responses",
			},
			[]string{"method", "path"},
		),
		storageOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"operation"},
		),
		storageOperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "Document store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storageOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operation_errors_total",
				Help: "Total number of document store errors",
			},
			[]string{"operation", "error_type"},
		),
		archivesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "storage_archives_total",
				Help: "Total number of archived document versions",
			},
		),
		archiveCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_archive_cache_lookups_total",
				Help: "Archive cache lookups by result",
			},
			[]string{"result"},
		),
		oracleOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_operations_total",
				Help: "Total number of cryptography oracle calls",
			},
			[]string{"operation"}, // decrypt, verify, sign, encrypt
		),
		oracleOperationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_operation_duration_seconds",
				Help:    "Cryptography oracle call duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		oracleOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_operation_errors_total",
				Help: "Total number of cryptography oracle errors",
			},
			[]string{"operation", "error_type"},
		),
		envelopesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helper_envelopes_total",
				Help: "Envelopes processed by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, bytes int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, http.StatusText(status)).Observe(duration.Seconds())
	m.httpRequestBytes.WithLabelValues(method, path).Add(float64(bytes))
}

// RecordStorageOperation implements storage.Recorder.
func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOperationsTotal.WithLabelValues(operation).Inc()
	m.storageOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOperationErrors.WithLabelValues(operation, storageErrorType(err)).Inc()
	}
}

// RecordArchive implements storage.Recorder.
func (m *Metrics) RecordArchive() {
	m.archivesTotal.Inc()
}

// RecordArchiveCacheLookup implements storage.CacheRecorder.
func (m *Metrics) RecordArchiveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.archiveCacheLookups.WithLabelValues(result).Inc()
}

// RecordOracleOperation implements crypto.Recorder.
func (m *Metrics) RecordOracleOperation(operation string, duration time.Duration, err error) {
	m.oracleOperationsTotal.WithLabelValues(operation).Inc()
	m.oracleOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.oracleOperationErrors.WithLabelValues(operation, oracleErrorType(err)).Inc()
	}
}

// RecordEnvelope records the outcome of one helper operation.
func (m *Metrics) RecordEnvelope(operation, outcome string) {
	m.envelopesTotal.WithLabelValues(operation, outcome).Inc()
}

func storageErrorType(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrInvalidKey):
		return "invalid_key"
	default:
		return "backend"
	}
}

func oracleErrorType(err error) string {
	switch {
	case errors.Is(err, crypto.ErrOracleUnavailable):
		return "unavailable"
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return "decryption_failed"
	case errors.Is(err, crypto.ErrInvalidKey):
		return "invalid_key"
	default:
		return "other"
	}
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector periodically updates system metrics until
// stop is closed.
func (m *Metrics) StartSystemMetricsCollector(stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.UpdateSystemMetrics()
			case <-stop:
				return
			}
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
