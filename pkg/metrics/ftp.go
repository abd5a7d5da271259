package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login results recorded by RecordLogin.
const (
	LoginSuccess  = "success"
	LoginFailed   = "failed"
	LoginRejected = "rejected" // too many concurrent sessions
)

// Transfer directions recorded by RecordBytesTransferred.
const (
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// FTPMetrics provides observability for the FTP adapter.
//
// Example usage:
//
//	adapter := ftp.New(config, store, factory, metrics.NewFTPMetrics())
type FTPMetrics interface {
	// RecordSessionOpened increments the active session gauge.
	RecordSessionOpened()

	// RecordSessionClosed decrements the active session gauge.
	RecordSessionClosed()

	// RecordLogin counts a login attempt by result
	// (LoginSuccess, LoginFailed or LoginRejected).
	RecordLogin(result string)

	// RecordBytesTransferred adds to the transfer volume of a direction
	// (DirectionUpload or DirectionDownload).
	RecordBytesTransferred(direction string, bytes int64)

	// RecordOperation records a filesystem operation issued by a session.
	//
	// Parameters:
	//   - operation: "mkdir", "remove", "rename", "open_read", ...
	//   - duration: time spent in the virtual filesystem
	//   - err: nil on success
	RecordOperation(operation string, duration time.Duration, err error)
}

type ftpMetrics struct {
	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	logins            *prometheus.CounterVec
	bytesTransferred  *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewFTPMetrics creates a Prometheus-backed FTPMetrics, or a no-op one when
// metrics are disabled.
func NewFTPMetrics() FTPMetrics {
	if !IsEnabled() {
		return NewNoopFTPMetrics()
	}

	reg := GetRegistry()

	return &ftpMetrics{
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "hdftp_ftp_active_sessions",
				Help: "Current number of open FTP sessions",
			},
		),
		sessionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "hdftp_ftp_sessions_total",
				Help: "Total number of FTP sessions opened",
			},
		),
		logins: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdftp_ftp_logins_total",
				Help: "Total number of FTP login attempts by result",
			},
			[]string{"result"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdftp_ftp_bytes_transferred_total",
				Help: "Total bytes transferred over FTP data connections",
			},
			[]string{"direction"},
		),
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hdftp_ftp_operations_total",
				Help: "Total number of filesystem operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "hdftp_ftp_operation_duration_seconds",
				Help: "Duration of filesystem operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *ftpMetrics) RecordSessionOpened() {
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *ftpMetrics) RecordSessionClosed() {
	m.activeSessions.Dec()
}

func (m *ftpMetrics) RecordLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

func (m *ftpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *ftpMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// NewNoopFTPMetrics returns an FTPMetrics that records nothing.
func NewNoopFTPMetrics() FTPMetrics {
	return noopFTPMetrics{}
}

type noopFTPMetrics struct{}

func (noopFTPMetrics) RecordSessionOpened()                         {}
func (noopFTPMetrics) RecordSessionClosed()                         {}
func (noopFTPMetrics) RecordLogin(string)                           {}
func (noopFTPMetrics) RecordBytesTransferred(string, int64)         {}
func (noopFTPMetrics) RecordOperation(string, time.Duration, error) {}
