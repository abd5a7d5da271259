package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/hdftp/pkg/adapter/ftp"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.FTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	ftpCfg := cfg.Adapters.FTP
	if _, err := ftp.ParsePortRange(ftpCfg.PassivePorts); err != nil {
		return fmt.Errorf("adapters.ftp: %w", err)
	}
	if ftpCfg.TLS.Mode != ftp.TLSModePlain && (ftpCfg.TLS.CertFile == "" || ftpCfg.TLS.KeyFile == "") {
		return fmt.Errorf("adapters.ftp.tls: mode %q requires cert_file and key_file", ftpCfg.TLS.Mode)
	}
	if (ftpCfg.TLS.CertFile == "") != (ftpCfg.TLS.KeyFile == "") {
		return fmt.Errorf("adapters.ftp.tls: cert_file and key_file must be set together")
	}

	switch cfg.Storage.Type {
	case "local":
		if root, _ := cfg.Storage.Local["root"].(string); root == "" {
			return fmt.Errorf("storage.local: root is required")
		}
	case "s3":
		if bucket, _ := cfg.Storage.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("storage.s3: bucket is required")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapters.FTP.Port {
		return fmt.Errorf("metrics: port %d conflicts with the FTP adapter", cfg.Metrics.Port)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
