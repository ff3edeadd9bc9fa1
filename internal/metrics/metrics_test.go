package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Chunk("Images", "accepted")
	m.Chunk("Images", "accepted")
	m.Chunk("Images", "out_of_order")
	m.UploadedBytes("Images", 250)
	m.UploadedBytes("Images", 0)
	m.Completed("Images")
	m.IntegrityFailure("Images")
	m.ServedBytes("Images", "206", 100)
	m.SetActiveUploads(3)
	m.DownloadRejected("Images", "incomplete")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.chunks.WithLabelValues("Images", "accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.chunks.WithLabelValues("Images", "out_of_order")))
	assert.Equal(t, float64(250), testutil.ToFloat64(m.uploadedBytes.WithLabelValues("Images")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.completed.WithLabelValues("Images")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.integrityFailures.WithLabelValues("Images")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.servedBytes.WithLabelValues("Images", "206")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.activeUploads))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.downloadsRejected.WithLabelValues("Images", "incomplete")))
}

func TestFiles_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestFiles_NilIsNoop(t *testing.T) {
	var m *Files
	assert.NotPanics(t, func() {
		m.Chunk("c", "accepted")
		m.UploadedBytes("c", 1)
		m.Completed("c")
		m.IntegrityFailure("c")
		m.ServedBytes("c", "200", 1)
		m.SetActiveUploads(1)
		m.DownloadRejected("c", "denied")
	})
}
