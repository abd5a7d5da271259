package config

import (
	"fmt"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/adapter"
	"github.com/marmos91/hdftp/pkg/adapter/ftp"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/vfs"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete HDFTP configuration
//   - store: Account store shared by every adapter
//   - factory: View factory shared by every adapter
//   - ftpMetrics: Optional FTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, store *account.Store, factory *vfs.Factory, ftpMetrics metrics.FTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.FTP.Enabled {
		adapters = append(adapters, ftp.New(cfg.Adapters.FTP, store, factory, ftpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
