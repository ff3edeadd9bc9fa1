// Package metrics holds the Prometheus collectors of the upload and download paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Files groups the domain collectors. A nil *Files records nothing.
type Files struct {
	chunks            *prometheus.CounterVec
	uploadedBytes     *prometheus.CounterVec
	completed         *prometheus.CounterVec
	integrityFailures *prometheus.CounterVec
	servedBytes       *prometheus.CounterVec
	activeUploads     prometheus.Gauge
	downloadsRejected *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Files, error) {
	m := &Files{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_upload_chunks_total",
			Help: "Upload chunks processed, by outcome.",
		}, []string{"collection", "result"}),
		uploadedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_uploaded_bytes_total",
			Help: "Bytes written to storage by accepted chunks.",
		}, []string{"collection"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_uploads_completed_total",
			Help: "Uploads finalized and marked complete.",
		}, []string{"collection"}),
		integrityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_integrity_failures_total",
			Help: "Uploads discarded because the checksum did not match.",
		}, []string{"collection"}),
		servedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_served_bytes_total",
			Help: "Bytes scheduled for delivery by downloads, by status.",
		}, []string{"collection", "status"}),
		activeUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "files_uploads_active",
			Help: "Uploads with an open write handle.",
		}),
		downloadsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "files_downloads_rejected_total",
			Help: "Download requests answered without file content, by reason.",
		}, []string{"collection", "reason"}),
	}

	for _, c := range []prometheus.Collector{
		m.chunks, m.uploadedBytes, m.completed, m.integrityFailures,
		m.servedBytes, m.activeUploads, m.downloadsRejected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Files) Chunk(collection, result string) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues(collection, result).Inc()
}

func (m *Files) UploadedBytes(collection string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadedBytes.WithLabelValues(collection).Add(float64(n))
}

func (m *Files) Completed(collection string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(collection).Inc()
}

func (m *Files) IntegrityFailure(collection string) {
	if m == nil {
		return
	}
	m.integrityFailures.WithLabelValues(collection).Inc()
}

func (m *Files) ServedBytes(collection, status string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.servedBytes.WithLabelValues(collection, status).Add(float64(n))
}

// SetActiveUploads records the number of open uploads.
func (m *Files) SetActiveUploads(n int) {
	if m == nil {
		return
	}
	m.activeUploads.Set(float64(n))
}

func (m *Files) DownloadRejected(collection, reason string) {
	if m == nil {
		return
	}
	m.downloadsRejected.WithLabelValues(collection, reason).Inc()
}
