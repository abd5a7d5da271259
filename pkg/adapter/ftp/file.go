package ftp

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/marmos91/hdftp/pkg/vfs"
	"github.com/spf13/afero"
)

var (
	errNotSupported       = errors.New("operation not supported")
	errResumeNotSupported = errors.New("transfer resume not supported")
	errAppendNotSupported = errors.New("append not supported")
)

// ============================================================================
// File info
// ============================================================================

// fileInfo adapts a backend status to os.FileInfo.
type fileInfo struct {
	name   string
	status *storage.FileStatus
}

func newFileInfo(name string, st *storage.FileStatus) *fileInfo {
	return &fileInfo{name: name, status: st}
}

func (fi *fileInfo) Name() string { return fi.name }

func (fi *fileInfo) Size() int64 {
	if fi.status.IsDir {
		return 0
	}
	return fi.status.Size
}

func (fi *fileInfo) Mode() os.FileMode {
	mode := fi.status.Permission.FileMode()
	if fi.status.IsDir {
		mode |= os.ModeDir
	}
	return mode
}

func (fi *fileInfo) ModTime() time.Time { return fi.status.ModTime }
func (fi *fileInfo) IsDir() bool        { return fi.status.IsDir }

// Sys returns the *storage.FileStatus.
func (fi *fileInfo) Sys() any { return fi.status }

// ============================================================================
// Handles
// ============================================================================

// handle is the afero.File returned to the protocol engine. Exactly one of
// reader, writer or entries is in use: a download stream, an upload stream
// or a directory listing.
type handle struct {
	ctx  context.Context
	name string
	file *vfs.FileHandle

	reader io.Reader
	writer io.Writer
	closer io.Closer

	dir     bool
	entries []vfs.Entry
	offset  int

	direction string
	bytes     int64
	metrics   metrics.FTPMetrics

	closeOnce sync.Once
	closeErr  error
}

var _ afero.File = (*handle)(nil)

func (h *handle) Name() string { return h.name }

func (h *handle) Read(p []byte) (int, error) {
	if h.reader == nil {
		return 0, &os.PathError{Op: "read", Path: h.name, Err: errNotSupported}
	}
	n, err := h.reader.Read(p)
	h.bytes += int64(n)
	return n, err
}

func (h *handle) Write(p []byte) (int, error) {
	if h.writer == nil {
		return 0, &os.PathError{Op: "write", Path: h.name, Err: errNotSupported}
	}
	n, err := h.writer.Write(p)
	h.bytes += int64(n)
	return n, err
}

func (h *handle) WriteString(s string) (int, error) {
	return h.Write([]byte(s))
}

func (h *handle) ReadAt([]byte, int64) (int, error) {
	return 0, &os.PathError{Op: "readat", Path: h.name, Err: errNotSupported}
}

func (h *handle) WriteAt([]byte, int64) (int, error) {
	return 0, &os.PathError{Op: "writeat", Path: h.name, Err: errNotSupported}
}

// Seek only accepts positioning at the current offset; streams always
// start at byte 0.
func (h *handle) Seek(offset int64, whence int) (int64, error) {
	switch {
	case whence == io.SeekStart && offset == h.bytes:
		return offset, nil
	case whence == io.SeekCurrent && offset == 0:
		return h.bytes, nil
	}
	return 0, &os.PathError{Op: "seek", Path: h.name, Err: errResumeNotSupported}
}

func (h *handle) Readdir(count int) ([]os.FileInfo, error) {
	if !h.dir {
		return nil, &os.PathError{Op: "readdir", Path: h.name, Err: errNotSupported}
	}

	remaining := h.entries[h.offset:]
	if count > 0 {
		if len(remaining) == 0 {
			return nil, io.EOF
		}
		remaining = remaining[:min(count, len(remaining))]
	}

	infos := make([]os.FileInfo, len(remaining))
	for i, e := range remaining {
		infos[i] = newFileInfo(path.Base(e.Path()), e.Status)
	}
	h.offset += len(remaining)
	return infos, nil
}

func (h *handle) Readdirnames(n int) ([]string, error) {
	infos, err := h.Readdir(n)
	names := make([]string, len(infos))
	for i, fi := range infos {
		names[i] = fi.Name()
	}
	return names, err
}

func (h *handle) Stat() (os.FileInfo, error) {
	st, err := h.file.Status(h.ctx)
	if err != nil {
		return nil, toPathError("stat", h.name, err)
	}
	return newFileInfo(h.file.Name(), st), nil
}

func (h *handle) Sync() error { return nil }

func (h *handle) Truncate(int64) error {
	return &os.PathError{Op: "truncate", Path: h.name, Err: errNotSupported}
}

// Close ends the stream and records the transferred volume. Closing an
// upload commits the file on the backend.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		if h.closer != nil {
			h.closeErr = h.closer.Close()
		}
		if h.direction != "" {
			h.metrics.RecordBytesTransferred(h.direction, h.bytes)
			logger.Debug("FTP %s of %s finished: bytes=%d err=%v", h.direction, h.name, h.bytes, h.closeErr)
		}
	})
	return h.closeErr
}
