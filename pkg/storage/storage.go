// Package storage defines the remote hierarchical storage capability the
// gateway translates file-protocol requests into.
//
// A Client is opened once at process start under a fixed operating identity
// (the superuser/supergroup pair given to the backend constructor) and is
// shared by every session. Implementations must be safe for concurrent use;
// callers add no locking around storage calls.
//
// Paths passed to a Client are absolute, slash-separated backing paths
// ("/home/alice/docs"). Paths reported back in FileStatus.Path are the
// backend's own absolute form, which may carry a "scheme://authority"
// prefix (for example "s3://bucket/home/alice/docs").
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// FileStatus is the metadata a backend reports for one path.
type FileStatus struct {
	// Path is the backend-reported absolute path, including the backend URI prefix
	Path string

	// IsDir is true for directories
	IsDir bool

	// Owner is the user name owning the path
	Owner string

	// Group is the group name owning the path
	Group string

	// Permission is the 9-bit owner/group/other encoding
	Permission Permission

	// Size is the content length in bytes (0 for directories)
	Size int64

	// ModTime is the last modification time
	ModTime time.Time

	// AccessTime is the last access time, zero if the backend does not track it
	AccessTime time.Time

	// Replication is the replication factor the file was written with, 0 if unknown
	Replication int
}

// Name returns the last element of the reported path.
func (s *FileStatus) Name() string {
	return path.Base(StripURI(s.Path))
}

// CreateOptions controls Client.Create.
type CreateOptions struct {
	// Replication requests a replication factor; 0 uses the backend default
	Replication int

	// Overwrite truncates an existing file instead of failing with ErrAlreadyExists
	Overwrite bool
}

// Client is the storage capability consumed by the virtual filesystem.
//
// Every method may block on network or disk I/O. Backend failures are
// reported as *StorageError values; a missing path is always ErrNotFound.
type Client interface {
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns the status of path.
	Stat(ctx context.Context, path string) (*FileStatus, error)

	// List returns the statuses of the immediate children of a directory.
	List(ctx context.Context, path string) ([]*FileStatus, error)

	// Mkdirs creates path and any missing ancestors. It returns true when
	// the directory exists afterwards.
	Mkdirs(ctx context.Context, path string) (bool, error)

	// Delete removes path. A non-empty directory requires recursive.
	// It returns false when path did not exist.
	Delete(ctx context.Context, path string, recursive bool) (bool, error)

	// Rename moves src to dst. It returns false when src is missing or dst exists.
	Rename(ctx context.Context, src, dst string) (bool, error)

	// SetOwner assigns the owner and group of path.
	SetOwner(ctx context.Context, path, user, group string) error

	// SetTimes updates the modification and access times of path.
	// A zero time leaves the corresponding value unchanged.
	SetTimes(ctx context.Context, path string, mtime, atime time.Time) error

	// Open returns a stream reading the file from its first byte.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create creates a file and returns a stream writing it from its first byte.
	// Missing parent directories are created.
	Create(ctx context.Context, path string, opts CreateOptions) (io.WriteCloser, error)

	// URI returns the "scheme://authority" prefix of reported paths.
	URI() string

	// Close releases the backend connection.
	Close() error
}

// CleanPath normalizes a backing path to an absolute slash-separated form.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// ReportedPath joins a backend URI and a clean backing path.
func ReportedPath(uri, p string) string {
	return uri + CleanPath(p)
}

// StripURI removes a leading "scheme://authority" segment from a reported
// path. Paths without a scheme are returned unchanged; a URI with no path
// component strips to "/".
func StripURI(p string) string {
	i := strings.Index(p, "://")
	if i < 0 {
		return p
	}
	rest := p[i+len("://"):]
	j := strings.Index(rest, "/")
	if j < 0 {
		return "/"
	}
	return rest[j:]
}
