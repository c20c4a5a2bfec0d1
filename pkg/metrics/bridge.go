package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BridgeMetrics provides observability for bridge operations and the
// metadata cache.
//
// Optional: components accept nil and use the no-op implementation.
type BridgeMetrics interface {
	// ObserveOperation records one completed bridge operation (Stat, List,
	// Mkdir, Remove, Rename, OpenRead, OpenWrite) with its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// CacheHit records a metadata cache hit for the given keyspace
	// ("listing" or "object").
	CacheHit(kind string)

	// CacheMiss records a metadata cache miss (absent or expired entry).
	CacheMiss(kind string)

	// CacheEviction records an entry dropped to make room for a new one.
	CacheEviction()

	// ReadResume records one transparent reconnect of a broken download.
	ReadResume()
}

// bridgeMetrics is the Prometheus implementation of BridgeMetrics.
type bridgeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	cacheEvictions    prometheus.Counter
	readResumes       prometheus.Counter
}

// NewBridgeMetrics creates a Prometheus-backed BridgeMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled.
func NewBridgeMetrics() BridgeMetrics {
	if !IsEnabled() {
		return NewNoopBridgeMetrics()
	}

	reg := GetRegistry()

	return &bridgeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_bridge_operations_total",
				Help: "Total bridge operations by name and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "drivebridge_bridge_operation_duration_seconds",
				Help: "Duration of bridge operations",
				Buckets: []float64{
					0.001, // 1ms (cache hit path)
					0.01,  // 10ms
					0.1,   // 100ms
					0.5,   // 500ms
					1,     // 1s
					5,     // 5s
				},
			},
			[]string{"operation"},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_cache_hits_total",
				Help: "Metadata cache hits by keyspace",
			},
			[]string{"kind"},
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_cache_misses_total",
				Help: "Metadata cache misses by keyspace",
			},
			[]string{"kind"},
		),
		cacheEvictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "drivebridge_cache_evictions_total",
				Help: "Metadata cache entries evicted to make room",
			},
		),
		readResumes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "drivebridge_read_resumes_total",
				Help: "Broken downloads transparently resumed",
			},
		),
	}
}

func (m *bridgeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *bridgeMetrics) CacheHit(kind string) {
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *bridgeMetrics) CacheMiss(kind string) {
	m.cacheMisses.WithLabelValues(kind).Inc()
}

func (m *bridgeMetrics) CacheEviction() {
	m.cacheEvictions.Inc()
}

func (m *bridgeMetrics) ReadResume() {
	m.readResumes.Inc()
}

// noopBridgeMetrics discards all observations.
type noopBridgeMetrics struct{}

// NewNoopBridgeMetrics returns a BridgeMetrics that discards everything.
func NewNoopBridgeMetrics() BridgeMetrics {
	return noopBridgeMetrics{}
}

func (noopBridgeMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopBridgeMetrics) CacheHit(string)                               {}
func (noopBridgeMetrics) CacheMiss(string)                              {}
func (noopBridgeMetrics) CacheEviction()                                {}
func (noopBridgeMetrics) ReadResume()                                   {}
