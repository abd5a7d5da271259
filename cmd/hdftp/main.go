package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/config"
	"github.com/marmos91/hdftp/pkg/server"
	"github.com/marmos91/hdftp/pkg/storage"
)

const usage = `HDFTP - FTP gateway to remote storage

Usage:
  hdftp <command> [flags]

Commands:
  init      Write a default configuration file
  start     Start the gateway
  user      Manage accounts (add, delete, list, passwd)
  help      Show this help

Run 'hdftp <command> -h' for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "user":
		err = runUser(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	path := fs.String("config", "", "Write to this path instead of the default location")
	_ = fs.Parse(args)

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: $XDG_CONFIG_HOME/hdftp/config.yaml)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return err
	}
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	// Create cancellable context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics come first so the storage client is created instrumented
	metricsResult := config.InitializeMetrics(cfg)

	client, err := config.CreateStorageClient(ctx, &cfg.Storage)
	if err != nil {
		return err
	}
	logger.Info("Storage backend: %s (%s)", cfg.Storage.Type, client.URI())

	store, err := config.CreateAccountStore(&cfg.Accounts)
	if err != nil {
		closeClient(client)
		return err
	}
	if names, err := store.Names(); err == nil {
		logger.Info("Loaded %d account(s) from %s", len(names), cfg.Accounts.File)
	}

	// SIGHUP picks up accounts changed with `hdftp user` while running
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go reloadAccounts(ctx, hup, store)

	factory := config.CreateViewFactory(client, &cfg.Filesystem)

	srv := server.New(client, store, server.Options{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsServer:   metricsResult.Server,
	})

	adapters, err := config.CreateAdapters(cfg, store, factory, metricsResult.FTPMetrics)
	if err != nil {
		store.Dispose()
		closeClient(client)
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			store.Dispose()
			closeClient(client)
			return err
		}
	}

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func closeClient(client storage.Client) {
	if err := client.Close(); err != nil {
		logger.Warn("Error closing storage client: %v", err)
	}
}
