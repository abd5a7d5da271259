package vfs

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/storage"
)

// FileHandle binds one virtual path to an account and a storage client.
//
// Handles are cheap values built per operation. Every query goes to the
// backend; nothing is cached.
//
// Metadata queries (IsDirectory, Size, OwnerName, ...) never return errors:
// a backend failure is logged and reported as false, "" or zero. Operations
// that open streams return errors instead, since the caller must know the
// transfer did not start.
type FileHandle struct {
	client  storage.Client
	account *account.Account
	virtual string
	backing string
}

func newFileHandle(client storage.Client, acc *account.Account, virtual string) *FileHandle {
	virtual = path.Clean("/" + virtual)
	return &FileHandle{
		client:  client,
		account: acc,
		virtual: virtual,
		backing: backingPath(acc.HomeDirectory(), virtual),
	}
}

// Path returns the protocol-visible path ("/docs/a.txt").
func (f *FileHandle) Path() string { return f.virtual }

// BackingPath returns the path in the backing store ("/home/alice/docs/a.txt").
func (f *FileHandle) BackingPath() string { return f.backing }

// Name returns the last element of the path; "/" for the root.
func (f *FileHandle) Name() string { return path.Base(f.virtual) }

// Hidden is always false; the backing store has no hidden objects.
func (f *FileHandle) Hidden() bool { return false }

func (f *FileHandle) identity() Identity {
	return Identity{Name: f.account.Name(), Group: f.account.Group()}
}

// ============================================================================
// Metadata queries
// ============================================================================

// stat fetches the backend status, logging failures under op.
// A missing path is logged at debug level only.
func (f *FileHandle) stat(ctx context.Context, op string) (*storage.FileStatus, bool) {
	st, err := f.client.Stat(ctx, f.backing)
	if err != nil {
		if storage.IsNotFound(err) {
			logger.Debug("%s(): %s does not exist", op, f.backing)
		} else {
			logger.Error("%s(): %s: %v", op, f.backing, err)
		}
		return nil, false
	}
	return st, true
}

// Status returns the raw backend status of the path.
func (f *FileHandle) Status(ctx context.Context) (*storage.FileStatus, error) {
	return f.client.Stat(ctx, f.backing)
}

func (f *FileHandle) IsDirectory(ctx context.Context) bool {
	st, ok := f.stat(ctx, "isDirectory")
	return ok && st.IsDir
}

func (f *FileHandle) IsFile(ctx context.Context) bool {
	st, ok := f.stat(ctx, "isFile")
	return ok && !st.IsDir
}

func (f *FileHandle) Exists(ctx context.Context) bool {
	ok, err := f.client.Exists(ctx, f.backing)
	if err != nil {
		logger.Error("exists(): %s: %v", f.backing, err)
		return false
	}
	return ok
}

// IsReadable reports whether the account may read the path. A missing path
// is not readable.
func (f *FileHandle) IsReadable(ctx context.Context) bool {
	st, ok := f.stat(ctx, "isReadable")
	if !ok {
		return false
	}
	granted := CanRead(st.Permission, f.identity(), st.Owner, st.Group)
	logger.Debug("isReadable(): %s %s:%s %s -> %t", f.backing, st.Owner, st.Group, st.Permission, granted)
	return granted
}

// IsWritable reports whether the account may write the path.
//
// The account's write authority must grant first. A missing path defers to
// the nearest existing ancestor in the backing store.
func (f *FileHandle) IsWritable(ctx context.Context) bool {
	if !f.account.CanWrite() {
		logger.Debug("isWritable(): %s denied by write authority of %s", f.backing, f.account.Name())
		return false
	}
	return f.writable(ctx, f.backing)
}

func (f *FileHandle) writable(ctx context.Context, p string) bool {
	st, err := f.client.Stat(ctx, p)
	if storage.IsNotFound(err) {
		if p == "/" {
			return false
		}
		return f.writable(ctx, path.Dir(p))
	}
	if err != nil {
		logger.Error("isWritable(): %s: %v", p, err)
		return false
	}
	granted := CanWrite(st.Permission, f.identity(), st.Owner, st.Group)
	logger.Debug("isWritable(): %s %s:%s %s -> %t", p, st.Owner, st.Group, st.Permission, granted)
	return granted
}

// IsRemovable is the same check as IsWritable.
func (f *FileHandle) IsRemovable(ctx context.Context) bool {
	return f.IsWritable(ctx)
}

// OwnerName returns the backend owner, or "" on failure.
func (f *FileHandle) OwnerName(ctx context.Context) string {
	if st, ok := f.stat(ctx, "getOwnerName"); ok {
		return st.Owner
	}
	return ""
}

// GroupName returns the backend group, or "" on failure.
func (f *FileHandle) GroupName(ctx context.Context) string {
	if st, ok := f.stat(ctx, "getGroupName"); ok {
		return st.Group
	}
	return ""
}

// LastModified returns the modification time, or the zero time on failure.
func (f *FileHandle) LastModified(ctx context.Context) time.Time {
	if st, ok := f.stat(ctx, "getLastModified"); ok {
		return st.ModTime
	}
	return time.Time{}
}

// Size returns the length in bytes, or 0 on failure.
func (f *FileHandle) Size(ctx context.Context) int64 {
	if st, ok := f.stat(ctx, "getSize"); ok {
		return st.Size
	}
	return 0
}

// ============================================================================
// Mutations
// ============================================================================

// Mkdir creates the directory with any missing ancestors and hands it to
// the account.
func (f *FileHandle) Mkdir(ctx context.Context) bool {
	ok, err := f.client.Mkdirs(ctx, f.backing)
	if err != nil {
		logger.Error("mkdir(): %s: %v", f.backing, err)
		return false
	}
	if !ok {
		return false
	}
	if err := f.client.SetOwner(ctx, f.backing, f.account.Name(), f.account.Group()); err != nil {
		logger.Error("mkdir(): %s: set owner: %v", f.backing, err)
		return false
	}
	return true
}

// Delete removes the path recursively. Missing paths return false.
func (f *FileHandle) Delete(ctx context.Context) bool {
	if !f.Exists(ctx) {
		return false
	}
	ok, err := f.client.Delete(ctx, f.backing, true)
	if err != nil {
		logger.Error("delete(): %s: %v", f.backing, err)
		return false
	}
	return ok
}

// Move renames the path to target. Permission checks are the caller's.
func (f *FileHandle) Move(ctx context.Context, target *FileHandle) bool {
	dst := backingPath(f.account.HomeDirectory(), target.virtual)
	ok, err := f.client.Rename(ctx, f.backing, dst)
	if err != nil {
		logger.Error("move(): %s -> %s: %v", f.backing, dst, err)
		return false
	}
	return ok
}

// SetLastModified sets both modification and access time.
func (f *FileHandle) SetLastModified(ctx context.Context, t time.Time) bool {
	if err := f.client.SetTimes(ctx, f.backing, t, t); err != nil {
		logger.Error("setLastModified(): %s: %v", f.backing, err)
		return false
	}
	return true
}

// ============================================================================
// Listing
// ============================================================================

// Entry is a listed child with the status the backend reported for it.
type Entry struct {
	*FileHandle
	Status *storage.FileStatus
}

// Entries lists the immediate children. The second result is false when the
// path is not readable or the backend fails.
func (f *FileHandle) Entries(ctx context.Context) ([]Entry, bool) {
	if !f.IsReadable(ctx) {
		logger.Debug("listFiles(): no read permission: %s", f.backing)
		return nil, false
	}

	statuses, err := f.client.List(ctx, f.backing)
	if err != nil {
		logger.Error("listFiles(): %s: %v", f.backing, err)
		return nil, false
	}

	home := f.account.HomeDirectory()
	entries := make([]Entry, 0, len(statuses))
	for _, st := range statuses {
		entries = append(entries, Entry{
			FileHandle: newFileHandle(f.client, f.account, virtualPath(home, st.Path)),
			Status:     st,
		})
	}
	return entries, true
}

// List returns handles for the immediate children, or nil when the path is
// not readable or the backend fails.
func (f *FileHandle) List(ctx context.Context) []*FileHandle {
	entries, ok := f.Entries(ctx)
	if !ok {
		return nil
	}
	handles := make([]*FileHandle, len(entries))
	for i, e := range entries {
		handles[i] = e.FileHandle
	}
	return handles
}

// ============================================================================
// Streams
// ============================================================================

// OpenForWrite creates (or truncates) the file and hands it to the account.
//
// The file is created with the account's replication factor when set. The
// offset is accepted for protocol resume semantics but the stream always
// starts at byte 0.
func (f *FileHandle) OpenForWrite(ctx context.Context, offset int64) (io.WriteCloser, error) {
	if !f.IsWritable(ctx) {
		return nil, fmt.Errorf("%w: no write permission: %s", ErrPermissionDenied, f.virtual)
	}
	if offset != 0 {
		logger.Debug("openForWrite(): %s: ignoring offset %d", f.backing, offset)
	}

	w, err := f.client.Create(ctx, f.backing, storage.CreateOptions{
		Replication: f.account.Replication(),
		Overwrite:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", f.virtual, err)
	}

	if err := f.client.SetOwner(ctx, f.backing, f.account.Name(), f.account.Group()); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("set owner of %s: %w", f.virtual, err)
	}
	return w, nil
}

// OpenForRead opens the file from its first byte; see OpenForWrite on offsets.
func (f *FileHandle) OpenForRead(ctx context.Context, offset int64) (io.ReadCloser, error) {
	if !f.IsReadable(ctx) {
		return nil, fmt.Errorf("%w: no read permission: %s", ErrPermissionDenied, f.virtual)
	}
	if offset != 0 {
		logger.Debug("openForRead(): %s: ignoring offset %d", f.backing, offset)
	}

	r, err := f.client.Open(ctx, f.backing)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.virtual, err)
	}
	return r, nil
}
