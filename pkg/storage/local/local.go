// Package local implements storage.Client on a local directory tree.
//
// File data goes through an afero.Fs rooted at the configured directory;
// ownership, group, permission overrides and replication factors are kept
// in a BadgerDB attribute store next to it (see attrs.go).
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/spf13/afero"
)

// URI is the scheme prefix of paths reported by the local client.
const URI = "file://"

// Config configures a local Client.
type Config struct {
	// Root is the directory holding file data. Required unless Fs is set.
	Root string `mapstructure:"root"`

	// MetadataPath is the BadgerDB directory for path attributes.
	// Defaults to the sibling directory <Root>.meta when empty and InMemoryMetadata is false.
	MetadataPath string `mapstructure:"metadata_path"`

	// InMemoryMetadata keeps attributes in an in-memory BadgerDB (lost on restart)
	InMemoryMetadata bool `mapstructure:"in_memory_metadata"`

	// Superuser owns paths without an explicit owner
	Superuser string `mapstructure:"superuser"`

	// Supergroup is the group of paths without an explicit group
	Supergroup string `mapstructure:"supergroup"`

	// Fs overrides the data filesystem (tests use afero.NewMemMapFs)
	Fs afero.Fs `mapstructure:"-"`
}

// Client is a storage.Client over afero + BadgerDB.
type Client struct {
	fs         afero.Fs
	db         *badger.DB
	superuser  string
	supergroup string
}

var _ storage.Client = (*Client)(nil)

// New opens the data filesystem and the attribute database.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fs := cfg.Fs
	if fs == nil {
		if cfg.Root == "" {
			return nil, fmt.Errorf("local storage: root is required")
		}
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local storage root %s: %w", cfg.Root, err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), cfg.Root)
	}

	var opts badger.Options
	switch {
	case cfg.InMemoryMetadata:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.MetadataPath != "":
		opts = badger.DefaultOptions(cfg.MetadataPath)
	case cfg.Root != "":
		opts = badger.DefaultOptions(filepath.Clean(cfg.Root) + ".meta")
	default:
		return nil, fmt.Errorf("local storage: metadata_path is required when root is not set")
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open attribute database: %w", err)
	}

	c := &Client{
		fs:         fs,
		db:         db,
		superuser:  cfg.Superuser,
		supergroup: cfg.Supergroup,
	}
	if c.superuser == "" {
		c.superuser = "hdftp"
	}
	if c.supergroup == "" {
		c.supergroup = "supergroup"
	}
	return c, nil
}

// URI returns the prefix of reported paths.
func (c *Client) URI() string {
	return URI
}

// translateError maps os/afero errors onto storage error codes.
func translateError(p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return storage.NewNotFoundError(p)
	case errors.Is(err, os.ErrExist):
		return storage.NewError(storage.ErrAlreadyExists, p, err)
	default:
		return storage.NewIOError(p, err)
	}
}

func (c *Client) status(p string, info os.FileInfo) (*storage.FileStatus, error) {
	st := &storage.FileStatus{
		Path:       storage.ReportedPath(URI, p),
		IsDir:      info.IsDir(),
		Owner:      c.superuser,
		Group:      c.supergroup,
		Permission: storage.PermissionFromFileMode(info.Mode()),
		ModTime:    info.ModTime(),
	}
	if !info.IsDir() {
		st.Size = info.Size()
	}

	err := c.db.View(func(txn *badger.Txn) error {
		attrs, err := getAttrs(txn, p)
		if err != nil || attrs == nil {
			return err
		}
		if attrs.Owner != "" {
			st.Owner = attrs.Owner
		}
		if attrs.Group != "" {
			st.Group = attrs.Group
		}
		if attrs.Permission != 0 {
			st.Permission = storage.Permission(attrs.Permission) & storage.PermissionMask
		}
		st.Replication = attrs.Replication
		return nil
	})
	if err != nil {
		return nil, storage.NewIOError(p, err)
	}
	return st, nil
}

// Exists reports whether path exists.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)

	ok, err := afero.Exists(c.fs, p)
	if err != nil {
		return false, translateError(p, err)
	}
	return ok, nil
}

// Stat returns the status of path.
func (c *Client) Stat(ctx context.Context, p string) (*storage.FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, translateError(p, err)
	}
	return c.status(p, info)
}

// List returns the immediate children of a directory sorted by name.
func (c *Client) List(ctx context.Context, p string) ([]*storage.FileStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, translateError(p, err)
	}
	if !info.IsDir() {
		st, err := c.status(p, info)
		if err != nil {
			return nil, err
		}
		return []*storage.FileStatus{st}, nil
	}

	infos, err := afero.ReadDir(c.fs, p)
	if err != nil {
		return nil, translateError(p, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	result := make([]*storage.FileStatus, 0, len(infos))
	for _, child := range infos {
		st, err := c.status(path.Join(p, child.Name()), child)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, nil
}

// Mkdirs creates path and any missing ancestors.
func (c *Client) Mkdirs(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)

	if err := c.fs.MkdirAll(p, storage.DefaultDirPermission.FileMode()); err != nil {
		if info, statErr := c.fs.Stat(p); statErr == nil && !info.IsDir() {
			return false, storage.NewError(storage.ErrNotDirectory, p, err)
		}
		return false, translateError(p, err)
	}

	// Some afero backends accept MkdirAll over an existing file
	info, err := c.fs.Stat(p)
	if err != nil {
		return false, translateError(p, err)
	}
	if !info.IsDir() {
		return false, storage.NewError(storage.ErrNotDirectory, p, nil)
	}
	return true, nil
}

// Delete removes path, descending into directories when recursive is set.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = storage.CleanPath(p)
	if p == "/" {
		return false, storage.NewError(storage.ErrInvalidArgument, p, nil)
	}

	info, err := c.fs.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, translateError(p, err)
	}

	if info.IsDir() && !recursive {
		empty, err := afero.IsEmpty(c.fs, p)
		if err != nil {
			return false, translateError(p, err)
		}
		if !empty {
			return false, storage.NewError(storage.ErrNotEmpty, p, nil)
		}
	}

	if err := c.fs.RemoveAll(p); err != nil {
		return false, translateError(p, err)
	}
	if err := deleteSubtree(c.db, p); err != nil {
		return true, storage.NewIOError(p, err)
	}
	return true, nil
}

// Rename moves src to dst together with its attributes.
func (c *Client) Rename(ctx context.Context, src, dst string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	src = storage.CleanPath(src)
	dst = storage.CleanPath(dst)

	if src == "/" || src == dst || strings.HasPrefix(dst, src+"/") {
		return false, nil
	}
	if ok, err := afero.Exists(c.fs, src); err != nil || !ok {
		return false, translateError(src, err)
	}
	if ok, err := afero.Exists(c.fs, dst); err != nil || ok {
		return false, translateError(dst, err)
	}
	if ok, err := afero.DirExists(c.fs, path.Dir(dst)); err != nil || !ok {
		return false, translateError(dst, err)
	}

	if err := c.fs.Rename(src, dst); err != nil {
		return false, translateError(src, err)
	}
	if err := moveSubtree(c.db, src, dst); err != nil {
		return true, storage.NewIOError(dst, err)
	}
	return true, nil
}

func (c *Client) updateAttrs(p string, fn func(a *pathAttrs)) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		attrs, err := getAttrs(txn, p)
		if err != nil {
			return err
		}
		if attrs == nil {
			attrs = &pathAttrs{}
		}
		fn(attrs)
		return putAttrs(txn, p, attrs)
	})
	if err != nil {
		return storage.NewIOError(p, err)
	}
	return nil
}

// SetOwner assigns owner and group. Empty values leave the field unchanged.
func (c *Client) SetOwner(ctx context.Context, p, user, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	if _, err := c.fs.Stat(p); err != nil {
		return translateError(p, err)
	}
	return c.updateAttrs(p, func(a *pathAttrs) {
		if user != "" {
			a.Owner = user
		}
		if group != "" {
			a.Group = group
		}
	})
}

// SetPermission overrides the permission bits reported for path.
func (c *Client) SetPermission(ctx context.Context, p string, perm storage.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	if _, err := c.fs.Stat(p); err != nil {
		return translateError(p, err)
	}
	return c.updateAttrs(p, func(a *pathAttrs) {
		a.Permission = uint16(perm & storage.PermissionMask)
	})
}

// SetTimes updates modification and access times.
func (c *Client) SetTimes(ctx context.Context, p string, mtime, atime time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p = storage.CleanPath(p)

	info, err := c.fs.Stat(p)
	if err != nil {
		return translateError(p, err)
	}
	if mtime.IsZero() {
		mtime = info.ModTime()
	}
	if atime.IsZero() {
		atime = time.Now()
	}
	return translateError(p, c.fs.Chtimes(p, atime, mtime))
}

// Open returns the file positioned at its first byte.
func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	info, err := c.fs.Stat(p)
	if err != nil {
		return nil, translateError(p, err)
	}
	if info.IsDir() {
		return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
	}

	f, err := c.fs.Open(p)
	if err != nil {
		return nil, translateError(p, err)
	}
	return f, nil
}

// Create creates or truncates a file owned by the superuser.
func (c *Client) Create(ctx context.Context, p string, opts storage.CreateOptions) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = storage.CleanPath(p)

	if info, err := c.fs.Stat(p); err == nil {
		if info.IsDir() {
			return nil, storage.NewError(storage.ErrIsDirectory, p, nil)
		}
		if !opts.Overwrite {
			return nil, storage.NewError(storage.ErrAlreadyExists, p, nil)
		}
	}

	if _, err := c.Mkdirs(ctx, path.Dir(p)); err != nil {
		return nil, err
	}

	f, err := c.fs.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, storage.DefaultFilePermission.FileMode())
	if err != nil {
		return nil, translateError(p, err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return putAttrs(txn, p, &pathAttrs{Replication: opts.Replication})
	})
	if err != nil {
		_ = f.Close()
		return nil, storage.NewIOError(p, err)
	}
	return f, nil
}

// Close closes the attribute database.
func (c *Client) Close() error {
	return c.db.Close()
}
