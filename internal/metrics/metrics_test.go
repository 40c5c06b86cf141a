package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/edulms/media/internal/storage"
)

func TestRecordSave(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	r.RecordSave(storage.KindFilesystem, 20*time.Millisecond, 1024, "")
	r.RecordSave(storage.KindFilesystem, 5*time.Millisecond, 2048, "")
	r.RecordSave(storage.KindFilesystem, time.Millisecond, 9999, storage.CodeUnsupportedType)

	require.Equal(t, float64(3072), testutil.ToFloat64(r.uploadedBytes.WithLabelValues("filesystem")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.errors.WithLabelValues("save", "filesystem", "unsupported_type")))
	require.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecordDelete(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	r.RecordDelete(storage.KindMediaCDN, 100*time.Millisecond, "")
	r.RecordDelete(storage.KindMediaCDN, 100*time.Millisecond, storage.CodeDeleteFailed)

	require.Equal(t, float64(1), testutil.ToFloat64(r.errors.WithLabelValues("delete", "media-cdn", "backend_delete_failed")))
	require.Equal(t, 0, testutil.CollectAndCount(r.uploadedBytes))
}

func TestNewPrometheusRecorder_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	second, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	second.RecordSave(storage.KindObjectStorage, time.Millisecond, 10, "")
	require.Equal(t, float64(10), testutil.ToFloat64(first.uploadedBytes.WithLabelValues("object-storage")))
}
