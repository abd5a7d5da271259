package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/marmos91/hdftp/pkg/storage/local"
	"github.com/marmos91/hdftp/pkg/storage/memory"
	"github.com/marmos91/hdftp/pkg/storage/s3"
	"github.com/marmos91/hdftp/pkg/vfs"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
)

// CreateStorageClient creates the storage client selected by cfg.Type.
//
// The type-specific map is decoded into the backend's option struct, the
// shared superuser/supergroup are applied, and the client is wrapped with
// storage metrics (a no-op when metrics are disabled).
//
// Supported types:
//   - "memory": pkg/storage/memory (ephemeral, for tests and demos)
//   - "local": pkg/storage/local (directory tree + BadgerDB attributes)
//   - "s3": pkg/storage/s3 (Amazon S3 or compatible storage)
func CreateStorageClient(ctx context.Context, cfg *StorageConfig) (storage.Client, error) {
	var (
		client storage.Client
		err    error
	)

	switch cfg.Type {
	case "memory":
		client, err = createMemoryStorageClient(ctx, cfg)
	case "local":
		client, err = createLocalStorageClient(ctx, cfg)
	case "s3":
		client, err = createS3StorageClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %q (supported: memory, local, s3)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return storage.Instrument(client, metrics.NewStorageMetrics(cfg.Type)), nil
}

func createMemoryStorageClient(ctx context.Context, cfg *StorageConfig) (storage.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts memory.Options
	if err := mapstructure.Decode(cfg.Memory, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode memory storage config: %w", err)
	}
	opts.Superuser = cfg.Superuser
	opts.Supergroup = cfg.Supergroup

	return memory.New(opts), nil
}

func createLocalStorageClient(ctx context.Context, cfg *StorageConfig) (storage.Client, error) {
	var localCfg local.Config
	if err := mapstructure.Decode(cfg.Local, &localCfg); err != nil {
		return nil, fmt.Errorf("failed to decode local storage config: %w", err)
	}
	if localCfg.Root == "" {
		return nil, fmt.Errorf("local storage: root is required")
	}
	localCfg.Superuser = cfg.Superuser
	localCfg.Supergroup = cfg.Supergroup

	client, err := local.New(ctx, localCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create local storage client: %w", err)
	}

	logger.Info("Local storage initialized: root=%s", localCfg.Root)
	return client, nil
}

// createS3StorageClient creates an S3-backed storage client.
func createS3StorageClient(ctx context.Context, cfg *StorageConfig) (storage.Client, error) {
	type S3StorageConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
		TempDir         string `mapstructure:"temp_dir"`
	}

	var storeCfg S3StorageConfig
	if err := mapstructure.Decode(cfg.S3, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 storage config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 storage: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 storage: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeCfg.Region))

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Retry transient failures (502, 503, timeouts) harder than the SDK default of 3
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	api := awsS3.NewFromConfig(awsCfg, func(o *awsS3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Storage Client
	// ========================================================================

	client, err := s3.New(ctx, s3.Config{
		Client:     api,
		Bucket:     storeCfg.Bucket,
		KeyPrefix:  storeCfg.KeyPrefix,
		Superuser:  cfg.Superuser,
		Supergroup: cfg.Supergroup,
		TempDir:    storeCfg.TempDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 storage client: %w", err)
	}

	logger.Info("S3 storage initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return client, nil
}

// CreatePasswordEncryptor returns the encryptor named by cfg.PasswordEncryptor.
func CreatePasswordEncryptor(cfg *AccountsConfig) (account.PasswordEncryptor, error) {
	switch cfg.PasswordEncryptor {
	case "argon2id":
		return account.NewArgon2Encryptor(cfg.Argon2), nil
	default:
		return account.NewPasswordEncryptor(cfg.PasswordEncryptor)
	}
}

// CreateAccountStore opens the account file on the OS filesystem.
func CreateAccountStore(cfg *AccountsConfig) (*account.Store, error) {
	return createAccountStore(afero.NewOsFs(), cfg)
}

func createAccountStore(fs afero.Fs, cfg *AccountsConfig) (*account.Store, error) {
	encryptor, err := CreatePasswordEncryptor(cfg)
	if err != nil {
		return nil, err
	}

	store, err := account.Open(account.Config{
		Fs:              fs,
		File:            cfg.File,
		Encryptor:       encryptor,
		CreateIfMissing: cfg.CreateIfMissing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open account store %s: %w", cfg.File, err)
	}

	return store, nil
}

// CreateViewFactory builds the per-session filesystem view factory.
func CreateViewFactory(client storage.Client, cfg *FilesystemConfig) *vfs.Factory {
	return vfs.NewFactory(client, cfg.CreateHome)
}
