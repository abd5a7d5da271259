package config

import (
	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/metrics"
)

// MetricsResult bundles what the metrics section produces.
type MetricsResult struct {
	// Server is nil when metrics are disabled
	Server *metrics.Server

	// FTPMetrics is never nil
	FTPMetrics metrics.FTPMetrics
}

// InitializeMetrics enables the registry when cfg.Metrics.Enabled is set.
// It has to run before CreateStorageClient, whose instrumentation is
// resolved against the registry at creation time.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		logger.Debug("Metrics disabled")
		return &MetricsResult{FTPMetrics: metrics.NewNoopFTPMetrics()}
	}

	metrics.InitRegistry()
	logger.Info("Metrics enabled on port %d", cfg.Metrics.Port)

	return &MetricsResult{
		Server:     metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		FTPMetrics: metrics.NewFTPMetrics(),
	}
}
