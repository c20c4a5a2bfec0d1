// Package metrics provides Prometheus metrics collection for drivebridge
// components.
//
// All metrics are optional: if InitRegistry is never called, the constructors
// return no-op implementations with zero overhead, so components can record
// unconditionally.
//
// Usage:
//
//	// Initialize the global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metric sinks for components
//	storeMetrics := metrics.NewStoreMetrics()
//	bridgeMetrics := metrics.NewBridgeMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all drivebridge metrics.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Must be called before creating metric instances. Safe to call multiple
// times; subsequent calls are ignored. If never called, all constructors
// return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
