package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/adapter/ftp"
	"github.com/marmos91/hdftp/pkg/storage/memory"
	"github.com/spf13/afero"
)

func TestCreateStorageClient_Memory(t *testing.T) {
	cfg := &StorageConfig{
		Type:       "memory",
		Superuser:  "hdfs",
		Supergroup: "hadoop",
		Memory:     map[string]any{"uri": "hdfs://namenode:8020"},
	}

	client, err := CreateStorageClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory storage client: %v", err)
	}
	defer func() { _ = client.Close() }()

	if client.URI() != "hdfs://namenode:8020" {
		t.Errorf("Expected decoded URI, got %q", client.URI())
	}

	ctx := context.Background()
	if _, err := client.Mkdirs(ctx, "/home/alice"); err != nil {
		t.Fatalf("Mkdirs failed: %v", err)
	}
	status, err := client.Stat(ctx, "/home/alice")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if status.Owner != "hdfs" || status.Group != "hadoop" {
		t.Errorf("Expected hdfs:hadoop ownership, got %s:%s", status.Owner, status.Group)
	}
}

func TestCreateStorageClient_Local(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data")
	cfg := &StorageConfig{
		Type:       "local",
		Superuser:  memory.DefaultSuperuser,
		Supergroup: memory.DefaultSupergroup,
		Local: map[string]any{
			"root":               root,
			"in_memory_metadata": true,
		},
	}

	client, err := CreateStorageClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create local storage client: %v", err)
	}
	defer func() { _ = client.Close() }()

	exists, err := client.Exists(context.Background(), "/")
	if err != nil || !exists {
		t.Errorf("Expected root to exist, got %v (err=%v)", exists, err)
	}
}

func TestCreateStorageClient_LocalMissingRoot(t *testing.T) {
	cfg := &StorageConfig{Type: "local", Local: map[string]any{}}

	_, err := CreateStorageClient(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing root")
	}
	if !strings.Contains(err.Error(), "root is required") {
		t.Errorf("Expected 'root is required' error, got: %v", err)
	}
}

func TestCreateStorageClient_S3MissingBucket(t *testing.T) {
	cfg := &StorageConfig{Type: "s3", S3: map[string]any{"region": "us-east-1"}}

	_, err := CreateStorageClient(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing bucket")
	}
	if !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateStorageClient_UnknownType(t *testing.T) {
	_, err := CreateStorageClient(context.Background(), &StorageConfig{Type: "hdfs"})
	if err == nil {
		t.Fatal("Expected error for unknown storage type")
	}
	if !strings.Contains(err.Error(), "unknown storage type") {
		t.Errorf("Expected 'unknown storage type' error, got: %v", err)
	}
}

func TestCreatePasswordEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "md5", want: "account.MD5Encryptor"},
		{name: "argon2id", want: "*account.Argon2Encryptor"},
		{name: "bcrypt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := CreatePasswordEncryptor(&AccountsConfig{PasswordEncryptor: tt.name})
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown encryptor")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			stored, err := enc.Encrypt("secret")
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if !enc.Matches("secret", stored) || enc.Matches("wrong", stored) {
				t.Errorf("%s encryptor does not verify its own output", tt.want)
			}
		})
	}
}

func TestCreateAccountStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := &AccountsConfig{
		File:              "/etc/hdftp/users.properties",
		PasswordEncryptor: "md5",
		CreateIfMissing:   true,
	}

	store, err := createAccountStore(fs, cfg)
	if err != nil {
		t.Fatalf("Failed to open account store: %v", err)
	}
	defer store.Dispose()

	if exists, _ := afero.Exists(fs, cfg.File); !exists {
		t.Error("Expected account file to be created")
	}

	cfg.File = "/etc/hdftp/missing.properties"
	cfg.CreateIfMissing = false
	if _, err := createAccountStore(fs, cfg); err == nil {
		t.Error("Expected error for missing account file")
	}
}

func TestCreateAdapters(t *testing.T) {
	cfg := GetDefaultConfig()
	client := memory.New(memory.Options{})
	defer func() { _ = client.Close() }()

	store, err := account.Open(account.Config{
		Fs:              afero.NewMemMapFs(),
		File:            "/users.properties",
		CreateIfMissing: true,
	})
	if err != nil {
		t.Fatalf("Failed to open account store: %v", err)
	}
	defer store.Dispose()

	adapters, err := CreateAdapters(cfg, store, CreateViewFactory(client, &cfg.Filesystem), nil)
	if err != nil {
		t.Fatalf("CreateAdapters failed: %v", err)
	}
	if len(adapters) != 1 {
		t.Fatalf("Expected 1 adapter, got %d", len(adapters))
	}
	if _, ok := adapters[0].(*ftp.FTPAdapter); !ok {
		t.Errorf("Expected *ftp.FTPAdapter, got %T", adapters[0])
	}
	if adapters[0].Port() != 2121 {
		t.Errorf("Expected port 2121, got %d", adapters[0].Port())
	}

	cfg.Adapters.FTP.Enabled = false
	if _, err := CreateAdapters(cfg, store, nil, nil); err == nil {
		t.Error("Expected error when no adapters are enabled")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(GetDefaultConfig())
	if result.Server != nil {
		t.Error("Expected no metrics server when disabled")
	}
	if result.FTPMetrics == nil {
		t.Error("Expected no-op FTP metrics when disabled")
	}
}
