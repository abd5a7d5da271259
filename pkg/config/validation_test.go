package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}

	if cfg.Storage.Superuser != "hdftp" || cfg.Storage.Supergroup != "supergroup" {
		t.Errorf("Unexpected default identity %s:%s", cfg.Storage.Superuser, cfg.Storage.Supergroup)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Server:  ServerConfig{ShutdownTimeout: time.Minute},
		Storage: StorageConfig{Type: "s3", Superuser: "hdfs", S3: map[string]any{"region": "eu-west-1"}},
	}
	cfg.Adapters.FTP.Port = 21
	cfg.Adapters.FTP.Banner = "welcome"

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != time.Minute {
		t.Errorf("Shutdown timeout overwritten: %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Superuser != "hdfs" || cfg.Storage.S3["region"] != "eu-west-1" {
		t.Errorf("Storage values overwritten: %+v", cfg.Storage)
	}
	if cfg.Adapters.FTP.Port != 21 || cfg.Adapters.FTP.Banner != "welcome" {
		t.Errorf("FTP values overwritten: %+v", cfg.Adapters.FTP)
	}
	if cfg.Adapters.FTP.Enabled {
		t.Error("ApplyDefaults must not enable the FTP adapter")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "TRACE" },
			wantErr: "Level",
		},
		{
			name:    "unknown encryptor",
			mutate:  func(c *Config) { c.Accounts.PasswordEncryptor = "sha1" },
			wantErr: "PasswordEncryptor",
		},
		{
			name:    "missing account file",
			mutate:  func(c *Config) { c.Accounts.File = "" },
			wantErr: "File",
		},
		{
			name:    "no adapters",
			mutate:  func(c *Config) { c.Adapters.FTP.Enabled = false },
			wantErr: "at least one adapter",
		},
		{
			name:    "bad passive range",
			mutate:  func(c *Config) { c.Adapters.FTP.PassivePorts = "6000" },
			wantErr: "passive_ports",
		},
		{
			name:    "implicit tls without certificate",
			mutate:  func(c *Config) { c.Adapters.FTP.TLS.Mode = "implicit" },
			wantErr: "requires cert_file",
		},
		{
			name:    "certificate without key",
			mutate:  func(c *Config) { c.Adapters.FTP.TLS.CertFile = "cert.pem" },
			wantErr: "set together",
		},
		{
			name: "explicit tls with certificate",
			mutate: func(c *Config) {
				c.Adapters.FTP.TLS.Mode = "explicit"
				c.Adapters.FTP.TLS.CertFile = "cert.pem"
				c.Adapters.FTP.TLS.KeyFile = "key.pem"
			},
		},
		{
			name:    "local without root",
			mutate:  func(c *Config) { delete(c.Storage.Local, "root") },
			wantErr: "root is required",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Storage.Type = "s3" },
			wantErr: "bucket is required",
		},
		{
			name:    "metrics port clash",
			mutate:  func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 2121 },
			wantErr: "conflicts",
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}
