package ftp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
)

// TLS modes accepted in TLSConfig.Mode.
const (
	// TLSModePlain serves clear-text FTP. When a certificate is configured,
	// clients may still upgrade with AUTH TLS.
	TLSModePlain = "plain"

	// TLSModeExplicit requires AUTH TLS before login.
	TLSModeExplicit = "explicit"

	// TLSModeImplicit wraps the control connection in TLS at accept time.
	TLSModeImplicit = "implicit"
)

// TLSConfig holds the certificate used for FTPS.
type TLSConfig struct {
	// CertFile is the PEM certificate chain.
	CertFile string `mapstructure:"cert_file"`

	// KeyFile is the PEM private key matching CertFile.
	KeyFile string `mapstructure:"key_file"`

	// Mode is one of "plain", "explicit" or "implicit". Empty means plain.
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=plain explicit implicit"`
}

// enabled reports whether a certificate is configured.
func (c TLSConfig) enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// FTPConfig holds configuration parameters for the FTP front end.
//
// Default values (applied by New if zero):
//   - Port: 2121
//   - Banner: "HDFTP ready"
//   - IdleTimeout: 5m
//   - ConnectionTimeout: 30s
//   - ShutdownTimeout: 30s
//   - TLS.Mode: plain
type FTPConfig struct {
	// Enabled controls whether the FTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// ListenAddress is the interface to bind; empty binds all interfaces.
	ListenAddress string `mapstructure:"listen_address"`

	// Port is the TCP port of the control connection.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// PassivePorts is the passive data port range, "start-end".
	// Empty lets the system pick ephemeral ports.
	PassivePorts string `mapstructure:"passive_ports"`

	// PublicHost is the address announced in PASV replies when the
	// server sits behind NAT.
	PublicHost string `mapstructure:"public_host"`

	// Banner is sent to clients when they connect.
	Banner string `mapstructure:"banner"`

	// IdleTimeout closes control connections without activity.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ConnectionTimeout bounds the wait for a data connection.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" validate:"min=0"`

	// ShutdownTimeout is how long Serve waits for open sessions to end
	// before closing them.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// DisableActiveMode refuses PORT/EPRT.
	DisableActiveMode bool `mapstructure:"disable_active_mode"`

	// TLS configures FTPS.
	TLS TLSConfig `mapstructure:"tls"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *FTPConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 2121
	}
	if c.Banner == "" {
		c.Banner = "HDFTP ready"
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.TLS.Mode == "" {
		c.TLS.Mode = TLSModePlain
	}
}

// validate checks the configuration after defaults are applied.
func (c *FTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("invalid IdleTimeout %v: must be >= 0", c.IdleTimeout)
	}
	if c.ConnectionTimeout < 0 {
		return fmt.Errorf("invalid ConnectionTimeout %v: must be >= 0", c.ConnectionTimeout)
	}
	if _, err := ParsePortRange(c.PassivePorts); err != nil {
		return err
	}

	switch c.TLS.Mode {
	case TLSModePlain:
	case TLSModeExplicit, TLSModeImplicit:
		if !c.TLS.enabled() {
			return fmt.Errorf("tls mode %q requires cert_file and key_file", c.TLS.Mode)
		}
	default:
		return fmt.Errorf("invalid tls mode %q: must be plain, explicit or implicit", c.TLS.Mode)
	}
	return nil
}

// address returns the control connection listen address.
func (c *FTPConfig) address() string {
	return fmt.Sprintf("%s:%d", c.ListenAddress, c.Port)
}

// tlsRequirement maps the TLS mode to the protocol engine's setting.
func (c *FTPConfig) tlsRequirement() ftpserver.TLSRequirement {
	switch c.TLS.Mode {
	case TLSModeExplicit:
		return ftpserver.MandatoryEncryption
	case TLSModeImplicit:
		return ftpserver.ImplicitEncryption
	default:
		return ftpserver.ClearOrEncrypted
	}
}

// ParsePortRange parses a passive port range in "start-end" form.
// An empty string returns nil.
func ParsePortRange(s string) (*ftpserver.PortRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, fmt.Errorf("invalid passive_ports %q: expected start-end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, fmt.Errorf("invalid passive_ports %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return nil, fmt.Errorf("invalid passive_ports %q: %w", s, err)
	}
	if start <= 0 || end > 65535 || end < start {
		return nil, fmt.Errorf("invalid passive_ports %q: need 0 < start <= end <= 65535", s)
	}
	return &ftpserver.PortRange{Start: start, End: end}, nil
}
