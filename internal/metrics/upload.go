package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UploadMetrics records UploadEngine throughput. Grounded on the
// teacher's pkg/metrics/prometheus/s3.go multipart-upload instrumentation.
type UploadMetrics struct {
	partsUploaded  prometheus.Counter
	bytesUploaded  prometheus.Counter
	groupsStarted  prometheus.Counter
	groupsFailed   prometheus.Counter
	groupsComplete prometheus.Counter
	retries        prometheus.Counter
}

// NewUploadMetrics creates a Prometheus-backed UploadMetrics. Returns
// nil if InitRegistry has not been called.
func NewUploadMetrics() *UploadMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &UploadMetrics{
		partsUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_parts_total",
			Help: "Total number of multipart chunks uploaded",
		}),
		bytesUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_bytes_total",
			Help: "Total bytes uploaded to object storage",
		}),
		groupsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_groups_started_total",
			Help: "Total number of import groups transitioned to InProgress",
		}),
		groupsFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_groups_failed_total",
			Help: "Total number of import groups transitioned to Failed",
		}),
		groupsComplete: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_groups_completed_total",
			Help: "Total number of import groups transitioned to Completed",
		}),
		retries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "agent_upload_retries_total",
			Help: "Total number of group upload retries after a 401",
		}),
	}
}

func (m *UploadMetrics) RecordPart(bytes int64) {
	if m == nil {
		return
	}
	m.partsUploaded.Inc()
	m.bytesUploaded.Add(float64(bytes))
}

func (m *UploadMetrics) RecordGroupStarted() {
	if m == nil {
		return
	}
	m.groupsStarted.Inc()
}

func (m *UploadMetrics) RecordGroupFailed() {
	if m == nil {
		return
	}
	m.groupsFailed.Inc()
}

func (m *UploadMetrics) RecordGroupCompleted() {
	if m == nil {
		return
	}
	m.groupsComplete.Inc()
}

func (m *UploadMetrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
