package config

import (
	"strings"
	"time"

	"github.com/marmos91/hdftp/pkg/adapter/ftp"
	"github.com/marmos91/hdftp/pkg/storage/memory"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans defaulting to true are seeded by Load (viper defaults) and
//     GetDefaultConfig, since false is indistinguishable from unset here
//   - Backend-specific defaults are handled by the backends
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyAccountsDefaults(&cfg.Accounts)
	applyFTPDefaults(&cfg.Adapters.FTP)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStorageDefaults sets storage defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "local"
	}
	if cfg.Superuser == "" {
		cfg.Superuser = memory.DefaultSuperuser
	}
	if cfg.Supergroup == "" {
		cfg.Supergroup = memory.DefaultSupergroup
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Local == nil {
		cfg.Local = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Defaults for all backends (for config file generation)
	if _, ok := cfg.Local["root"]; !ok {
		cfg.Local["root"] = "/tmp/hdftp/data"
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

func applyAccountsDefaults(cfg *AccountsConfig) {
	if cfg.File == "" {
		cfg.File = "/tmp/hdftp/users.properties"
	}
	if cfg.PasswordEncryptor == "" {
		cfg.PasswordEncryptor = "md5"
	}
}

// applyFTPDefaults sets FTP adapter defaults.
//
// Enabled is seeded to true by Load; it is never forced here so that an
// explicit enabled: false is honored.
func applyFTPDefaults(cfg *ftp.FTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 2121
	}
	if cfg.Banner == "" {
		cfg.Banner = "HDFTP ready"
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.TLS.Mode == "" {
		cfg.TLS.Mode = ftp.TLSModePlain
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Accounts: AccountsConfig{
			CreateIfMissing: true,
		},
		Filesystem: FilesystemConfig{
			CreateHome: true,
		},
		Adapters: AdaptersConfig{
			FTP: ftp.FTPConfig{
				Enabled: true, // FTP adapter enabled by default
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
