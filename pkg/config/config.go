package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/adapter/ftp"
	"github.com/spf13/viper"
)

// Config is the gateway configuration, merged from HDFTP_* environment
// variables over the YAML file over built-in defaults.
//
// Backend options live in one untyped map per storage type; only the map
// named by storage.type is decoded, by the factory for that backend.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`

	Server ServerConfig `mapstructure:"server"`

	Storage StorageConfig `mapstructure:"storage"`

	Accounts AccountsConfig `mapstructure:"accounts"`

	Filesystem FilesystemConfig `mapstructure:"filesystem"`

	Adapters AdaptersConfig `mapstructure:"adapters"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StorageConfig specifies the storage backend.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is decoded.
type StorageConfig struct {
	// Type specifies which backend to use
	// Valid values: memory, local, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory local s3"`

	// Superuser is the operating identity owning paths the gateway creates
	Superuser string `mapstructure:"superuser" validate:"required"`

	// Supergroup is the group of paths the gateway creates
	Supergroup string `mapstructure:"supergroup" validate:"required"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Local contains local-specific configuration (root, metadata_path)
	// Only used when Type = "local"
	Local map[string]any `mapstructure:"local"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// AccountsConfig locates the flat account file.
type AccountsConfig struct {
	// File is the path of the account properties file
	File string `mapstructure:"file" validate:"required"`

	// PasswordEncryptor hashes stored passwords
	// Valid values: md5, argon2id
	PasswordEncryptor string `mapstructure:"password_encryptor" validate:"required,oneof=md5 argon2id"`

	// Argon2 tunes the argon2id encryptor; zero fields take the defaults
	Argon2 account.Argon2Params `mapstructure:"argon2"`

	// CreateIfMissing writes an empty account file on first start
	CreateIfMissing bool `mapstructure:"create_if_missing"`
}

// FilesystemConfig controls the per-user virtual filesystem.
type FilesystemConfig struct {
	// CreateHome provisions missing home directories at login
	CreateHome bool `mapstructure:"create_home"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// FTP contains FTP protocol configuration.
	// Uses the ftp.FTPConfig type directly to avoid duplication.
	FTP ftp.FTPConfig `mapstructure:"ftp"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled starts the /metrics HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Port of the metrics HTTP server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// Load reads configPath (or config.yaml in the default directory when
// empty), overlays the environment, fills defaults and validates. A missing
// file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// HDFTP_ADAPTERS_FTP_PORT=2121 overrides adapters.ftp.port
	v.SetEnvPrefix("HDFTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose default is true cannot be told apart from an explicit
	// false after unmarshalling, so they are seeded here.
	v.SetDefault("filesystem.create_home", true)
	v.SetDefault("accounts.create_if_missing", true)
	v.SetDefault("adapters.ftp.enabled", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/hdftp/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is reported by the OS, not viper
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir is $XDG_CONFIG_HOME/hdftp, then ~/.config/hdftp, then ".".
func getConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "hdftp")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the directory holding the default config file.
func GetConfigDir() string {
	return getConfigDir()
}
