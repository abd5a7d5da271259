package metrics

import (
	"sync"
	"time"

	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storageMetrics is the Prometheus implementation of storage.Observer.
type storageMetrics struct {
	backend           string
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

var (
	storageVecsOnce    sync.Once
	storageOpsTotal    *prometheus.CounterVec
	storageOpsDuration *prometheus.HistogramVec
)

// NewStorageMetrics returns a storage.Observer labelling operations with
// backend ("memory", "local", "s3"), or nil when metrics are disabled.
//
// A nil result makes storage.Instrument return the client unwrapped.
func NewStorageMetrics(backend string) storage.Observer {
	if !IsEnabled() {
		return nil
	}

	storageVecsOnce.Do(func() {
		reg := GetRegistry()
		storageOpsTotal = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdftp_storage_operations_total",
				Help: "Total number of storage backend operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		)
		storageOpsDuration = promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "hdftp_storage_operation_duration_seconds",
				Help: "Duration of storage backend operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1,      // 1s
					10,     // 10s
				},
			},
			[]string{"backend", "operation"},
		)
	})

	return &storageMetrics{
		backend:           backend,
		operationsTotal:   storageOpsTotal,
		operationDuration: storageOpsDuration,
	}
}

func (m *storageMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(m.backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(m.backend, operation).Observe(duration.Seconds())
}
