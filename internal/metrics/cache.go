package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics records CacheEngine/Collector activity. Grounded on the
// teacher's pkg/metrics/prometheus/cache.go (cacheMetrics struct +
// NewCacheMetrics guarded by IsEnabled).
type CacheMetrics struct {
	lookups    *prometheus.CounterVec
	writeBytes prometheus.Counter
	readBytes  prometheus.Counter
	totalSize  prometheus.Gauge
	evictions  *prometheus.CounterVec
}

// NewCacheMetrics creates a Prometheus-backed CacheMetrics. Returns nil
// if InitRegistry has not been called, so callers can unconditionally
// hold a *CacheMetrics and nil-check before recording.
func NewCacheMetrics() *CacheMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &CacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_cache_lookups_total",
				Help: "Total number of page lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		writeBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_cache_write_bytes_total",
			Help: "Total bytes written to page files",
		}),
		readBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_cache_read_bytes_total",
			Help: "Total bytes read from page files",
		}),
		totalSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agent_cache_total_size_bytes",
			Help: "Current total size of cached pages",
		}),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_cache_evictions_total",
				Help: "Total number of pages evicted by cycle",
			},
			[]string{"cycle"}, // "soft", "hard"
		),
	}
}

// RecordLookup increments the hit/miss counter.
func (m *CacheMetrics) RecordLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.lookups.WithLabelValues("hit").Inc()
	} else {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

// RecordWrite adds to the write-bytes counter.
func (m *CacheMetrics) RecordWrite(n int) {
	if m == nil {
		return
	}
	m.writeBytes.Add(float64(n))
}

// RecordRead adds to the read-bytes counter.
func (m *CacheMetrics) RecordRead(n int) {
	if m == nil {
		return
	}
	m.readBytes.Add(float64(n))
}

// SetTotalSize sets the current total cache size gauge.
func (m *CacheMetrics) SetTotalSize(bytes uint64) {
	if m == nil {
		return
	}
	m.totalSize.Set(float64(bytes))
}

// RecordEviction increments the eviction counter for a cycle ("soft" or "hard").
func (m *CacheMetrics) RecordEviction(cycle string, n int) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(cycle).Add(float64(n))
}
