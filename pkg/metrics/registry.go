// Package metrics holds the gateway's Prometheus instrumentation.
//
// Collection is opt-in. Constructors consult the process registry: before
// InitRegistry they hand back no-op recorders (or nil for storage), so
// callers record without checking whether metrics are on.
//
//	metrics.InitRegistry()
//	ftpMetrics := metrics.NewFTPMetrics()
//	client = storage.Instrument(client, metrics.NewStorageMetrics("s3"))
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var current atomic.Pointer[prometheus.Registry]

// InitRegistry enables metrics. The first call creates the registry with
// Go runtime and process collectors; later calls are no-ops.
func InitRegistry() {
	if current.Load() != nil {
		return
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "hdftp"}),
	)
	current.CompareAndSwap(nil, reg)
}

// GetRegistry returns the registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return current.Load()
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return current.Load() != nil
}
