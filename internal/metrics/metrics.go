// Package metrics exports media storage telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edulms/media/internal/storage"
)

const namespace = "media_storage"

// PrometheusRecorder implements storage.Recorder.
type PrometheusRecorder struct {
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	uploadedBytes *prometheus.CounterVec
}

var _ storage.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder registers the storage collectors on reg (the default
// registerer when nil). Collectors that are already registered are reused.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of storage save and delete operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "backend"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed storage operations by error code.",
		}, []string{"operation", "backend", "code"}),
		uploadedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes successfully stored.",
		}, []string{"backend"}),
	}

	var err error
	if r.duration, err = register(reg, r.duration); err != nil {
		return nil, err
	}
	if r.errors, err = register(reg, r.errors); err != nil {
		return nil, err
	}
	if r.uploadedBytes, err = register(reg, r.uploadedBytes); err != nil {
		return nil, err
	}
	return r, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register storage metric: %w", err)
	}
	return c, nil
}

func (r *PrometheusRecorder) RecordSave(kind storage.Kind, d time.Duration, size int64, code storage.Code) {
	r.duration.WithLabelValues("save", string(kind)).Observe(d.Seconds())
	if code != "" {
		r.errors.WithLabelValues("save", string(kind), string(code)).Inc()
		return
	}
	r.uploadedBytes.WithLabelValues(string(kind)).Add(float64(size))
}

func (r *PrometheusRecorder) RecordDelete(kind storage.Kind, d time.Duration, code storage.Code) {
	r.duration.WithLabelValues("delete", string(kind)).Observe(d.Seconds())
	if code != "" {
		r.errors.WithLabelValues("delete", string(kind), string(code)).Inc()
	}
}
