package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics provides observability for remote store API calls.
//
// This interface is optional: components accept nil and fall back to the
// no-op implementation, so collection can be disabled with zero overhead.
type StoreMetrics interface {
	// ObserveCall records one completed API call with its duration and
	// outcome. err == nil counts as success.
	ObserveCall(operation string, duration time.Duration, err error)

	// ObserveRetry records one retry of a rate-limited or transient call.
	ObserveRetry(operation string)

	// RecordBytes records payload bytes moved in the given direction
	// ("download" or "upload").
	RecordBytes(direction string, n int64)
}

// storeMetrics is the Prometheus implementation of StoreMetrics.
type storeMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	retriesTotal *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec
}

// NewStoreMetrics creates a Prometheus-backed StoreMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled.
func NewStoreMetrics() StoreMetrics {
	if !IsEnabled() {
		return NewNoopStoreMetrics()
	}

	reg := GetRegistry()

	return &storeMetrics{
		callsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_store_calls_total",
				Help: "Total remote store API calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		callDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "drivebridge_store_call_duration_seconds",
				Help: "Duration of remote store API calls",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					30,   // 30s
				},
			},
			[]string{"operation"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_store_retries_total",
				Help: "Retries of rate-limited or transient store calls",
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "drivebridge_store_bytes_total",
				Help: "Payload bytes transferred to/from the remote store",
			},
			[]string{"direction"},
		),
	}
}

func (m *storeMetrics) ObserveCall(operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.callsTotal.WithLabelValues(operation, status).Inc()
	m.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *storeMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func (m *storeMetrics) RecordBytes(direction string, n int64) {
	if n > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// noopStoreMetrics discards all observations.
type noopStoreMetrics struct{}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

func (noopStoreMetrics) ObserveCall(string, time.Duration, error) {}
func (noopStoreMetrics) ObserveRetry(string)                     {}
func (noopStoreMetrics) RecordBytes(string, int64)               {}
