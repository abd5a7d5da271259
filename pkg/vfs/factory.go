// Package vfs maps a per-account virtual filesystem onto a storage backend.
//
// Every session sees a tree rooted at its account's home directory. Paths
// are resolved lexically (Resolve), translated to backing paths below the
// home directory and checked against the backend's owner/group/other bits
// plus the account's write authority before any mutation.
package vfs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/storage"
)

// Factory creates session views over one shared storage client.
type Factory struct {
	client     storage.Client
	createHome bool

	// provisionMu serializes home directory provisioning so two sessions of
	// a new account do not race on Mkdirs/SetOwner.
	provisionMu sync.Mutex
}

// NewFactory creates a view factory. With createHome set, a missing home
// directory is created and handed to the account on first login.
func NewFactory(client storage.Client, createHome bool) *Factory {
	return &Factory{client: client, createHome: createHome}
}

// Client returns the shared storage client.
func (f *Factory) Client() storage.Client {
	return f.client
}

// CreateView opens a view for acc positioned at its virtual root.
//
// Returns ErrHomeNotAbsolute when the account has no absolute home and
// ErrHomeNotDirectory when the home path holds a file.
func (f *Factory) CreateView(ctx context.Context, acc *account.Account) (*View, error) {
	if home := acc.HomeDirectory(); !strings.HasPrefix(home, "/") {
		return nil, fmt.Errorf("%w: %q for %s", ErrHomeNotAbsolute, home, acc.Name())
	}
	if err := f.provisionHome(ctx, acc); err != nil {
		return nil, err
	}
	return &View{
		client:  f.client,
		account: acc,
		cwd:     "/",
	}, nil
}

func (f *Factory) provisionHome(ctx context.Context, acc *account.Account) error {
	home := acc.HomeDirectory()

	f.provisionMu.Lock()
	defer f.provisionMu.Unlock()

	st, err := f.client.Stat(ctx, home)
	switch {
	case err == nil && !st.IsDir:
		return fmt.Errorf("%w: %s", ErrHomeNotDirectory, home)
	case err == nil:
		return nil
	case !storage.IsNotFound(err):
		return fmt.Errorf("stat home directory %s: %w", home, err)
	}

	if !f.createHome {
		logger.Warn("Home directory %s of %s does not exist", home, acc.Name())
		return nil
	}

	if _, err := f.client.Mkdirs(ctx, home); err != nil {
		return fmt.Errorf("create home directory %s: %w", home, err)
	}
	if err := f.client.SetOwner(ctx, home, acc.Name(), acc.Group()); err != nil {
		return fmt.Errorf("set owner of home directory %s: %w", home, err)
	}
	logger.Info("Created home directory %s for %s", home, acc.Name())
	return nil
}
