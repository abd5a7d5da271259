package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"
)

// configTemplate renders a commented configuration file. Values come from
// a Config so the file always matches the compiled-in defaults.
var configTemplate = template.Must(template.New("config").Funcs(template.FuncMap{
	"quote": strconv.Quote,
	"str": func(m map[string]any, key string) string {
		s, _ := m[key].(string)
		return strconv.Quote(s)
	},
}).Parse(`# HDFTP Configuration File
#
# Every key can be overridden with an environment variable:
# HDFTP_<SECTION>_<KEY>, for example HDFTP_LOGGING_LEVEL=DEBUG.

logging:
  # DEBUG, INFO, WARN or ERROR
  level: {{ quote .Logging.Level }}
  # text or json
  format: {{ quote .Logging.Format }}
  # stdout, stderr or a file path
  output: {{ quote .Logging.Output }}

server:
  # Time given to adapters to finish open sessions on shutdown
  shutdown_timeout: {{ quote .Server.ShutdownTimeout.String }}

storage:
  # memory, local or s3
  type: {{ quote .Storage.Type }}
  # Identity owning paths created by the gateway
  superuser: {{ quote .Storage.Superuser }}
  supergroup: {{ quote .Storage.Supergroup }}
  memory: {}
  local:
    # Directory holding user files
    root: {{ str .Storage.Local "root" }}
    # Attribute database (default: <root>.meta)
    # metadata_path: "/var/lib/hdftp/meta"
  s3:
    region: {{ str .Storage.S3 "region" }}
    # bucket: "my-bucket"
    # key_prefix: "gateway/"
    # endpoint: "http://localhost:9000"
    # access_key_id: ""
    # secret_access_key: ""
    # max_retries: 10

accounts:
  # Flat account file (ftpserver.user.<name>.<key>=<value>)
  file: {{ quote .Accounts.File }}
  # md5 or argon2id
  password_encryptor: {{ quote .Accounts.PasswordEncryptor }}
  # Write an empty account file when it does not exist
  create_if_missing: {{ .Accounts.CreateIfMissing }}

filesystem:
  # Create missing home directories at login
  create_home: {{ .Filesystem.CreateHome }}

adapters:
  ftp:
    enabled: {{ .Adapters.FTP.Enabled }}
    listen_address: {{ quote .Adapters.FTP.ListenAddress }}
    port: {{ .Adapters.FTP.Port }}
    # Passive data port range, "start-end" (empty: ephemeral ports)
    passive_ports: {{ quote .Adapters.FTP.PassivePorts }}
    # Address announced in PASV replies when behind NAT
    public_host: {{ quote .Adapters.FTP.PublicHost }}
    banner: {{ quote .Adapters.FTP.Banner }}
    idle_timeout: {{ quote .Adapters.FTP.IdleTimeout.String }}
    connection_timeout: {{ quote .Adapters.FTP.ConnectionTimeout.String }}
    shutdown_timeout: {{ quote .Adapters.FTP.ShutdownTimeout.String }}
    disable_active_mode: {{ .Adapters.FTP.DisableActiveMode }}
    tls:
      # plain, explicit (AUTH TLS required) or implicit
      mode: {{ quote .Adapters.FTP.TLS.Mode }}
      cert_file: {{ quote .Adapters.FTP.TLS.CertFile }}
      key_file: {{ quote .Adapters.FTP.TLS.KeyFile }}

metrics:
  # Serve Prometheus metrics on http://<host>:<port>/metrics
  enabled: {{ .Metrics.Enabled }}
  port: {{ .Metrics.Port }}
`))

// InitConfig writes a default configuration file to the default location.
//
// Returns the path written. Fails with an "already exists" error when the
// file is present and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as a commented YAML document.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("failed to render config template: %w", err)
	}
	return buf.String(), nil
}
