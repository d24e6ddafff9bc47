// Package metrics provides the process-wide Prometheus registry and
// the agent's collectors, grounded on the teacher's
// pkg/metrics/prometheus package (NewCacheMetrics/NewS3Metrics guarded
// by an IsEnabled/GetRegistry pair).
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enabled  atomic.Bool
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide Prometheus registry. Call once
// at startup when metrics are enabled; collectors constructed before
// this call (or when metrics are disabled) are no-ops.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	enabled.Store(true)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide registry, or nil if metrics
// were never initialized.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// Reset tears down the registry; used by tests that need a clean
// collector namespace between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled.Store(false)
}
