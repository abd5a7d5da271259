package vfs

import (
	"context"
	"sync"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/storage"
)

// View is one session's window on the virtual filesystem: the account, its
// home directory and the current working directory.
//
// A View belongs to a single session. The mutex only guards Dispose racing
// with a transfer goroutine still holding the view.
type View struct {
	mu       sync.Mutex
	client   storage.Client
	account  *account.Account
	cwd      string
	disposed bool
}

// Account returns the account the view was created for.
func (v *View) Account() *account.Account {
	return v.account
}

// WorkingDirectory returns the current virtual directory.
func (v *View) WorkingDirectory() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cwd
}

// ChangeWorkingDirectory moves to token if it resolves to a readable
// directory. Otherwise the working directory is left unchanged and false
// is returned.
func (v *View) ChangeWorkingDirectory(ctx context.Context, token string) (bool, error) {
	v.mu.Lock()
	if v.disposed {
		v.mu.Unlock()
		return false, ErrViewDisposed
	}
	target := Resolve(v.cwd, token)
	v.mu.Unlock()

	h := newFileHandle(v.client, v.account, target)
	if !h.IsDirectory(ctx) || !h.IsReadable(ctx) {
		logger.Debug("CWD %s refused for %s", target, v.account.Name())
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return false, ErrViewDisposed
	}
	v.cwd = target
	return true, nil
}

// GetFile returns a handle for token resolved against the working directory.
func (v *View) GetFile(token string) (*FileHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disposed {
		return nil, ErrViewDisposed
	}
	return newFileHandle(v.client, v.account, Resolve(v.cwd, token)), nil
}

// GetWorkingDirectory returns a handle for the working directory.
func (v *View) GetWorkingDirectory() (*FileHandle, error) {
	return v.GetFile(".")
}

// GetHomeDirectory returns a handle for the virtual root.
func (v *View) GetHomeDirectory() (*FileHandle, error) {
	return v.GetFile("/")
}

// IsRandomAccessible is always false: offsets are not honored.
func (v *View) IsRandomAccessible() bool {
	return false
}

// Dispose drops the storage reference. Later calls return ErrViewDisposed.
func (v *View) Dispose() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.client = nil
	v.disposed = true
}
