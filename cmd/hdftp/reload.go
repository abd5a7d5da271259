package main

import (
	"context"
	"os"

	"github.com/marmos91/hdftp/internal/logger"
)

type refresher interface {
	Refresh() error
}

// reloadAccounts refreshes store on every signal until ctx is done. A failed
// refresh keeps the accounts loaded before it.
func reloadAccounts(ctx context.Context, signals <-chan os.Signal, store refresher) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			logger.Info("Received %v, reloading accounts", sig)
			if err := store.Refresh(); err != nil {
				logger.Error("Account reload failed, keeping previous accounts: %v", err)
			}
		}
	}
}
