package ftp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/internal/ratelimiter"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/storage"
	"github.com/marmos91/hdftp/pkg/vfs"
	"github.com/spf13/afero"
)

// clientDriver is the filesystem of one logged-in session.
//
// The protocol engine hands every call an absolute virtual path; the
// driver resolves it through the session's vfs.View and applies the
// permission checks the engine expects before touching the backend:
//   - STOR/MKD/MFMT need the target writable
//   - DELE/RMD need the target removable
//   - RNFR/RNTO need a removable source and a writable target
//   - CWD/LIST need a readable directory
type clientDriver struct {
	ctx     context.Context
	view    *vfs.View
	metrics metrics.FTPMetrics

	// uploadRate and downloadRate come from the account's TransferRate
	// policy, in bytes per second; 0 is unlimited
	uploadRate   int
	downloadRate int
}

var _ afero.Fs = (*clientDriver)(nil)

func newClientDriver(ctx context.Context, view *vfs.View, m metrics.FTPMetrics) *clientDriver {
	verdict := view.Account().Authorize(transferRateRequest)
	return &clientDriver{
		ctx:          ctx,
		view:         view,
		metrics:      m,
		uploadRate:   verdict.MaxUploadRate,
		downloadRate: verdict.MaxDownloadRate,
	}
}

// Name identifies the filesystem in protocol engine logs.
func (d *clientDriver) Name() string { return "hdftp" }

// observe records one operation; call as defer d.observe(op, time.Now(), &err).
func (d *clientDriver) observe(op string, start time.Time, err *error) {
	d.metrics.RecordOperation(op, time.Since(start), *err)
}

// file resolves name to a handle of the session's view.
func (d *clientDriver) file(op, name string) (*vfs.FileHandle, error) {
	f, err := d.view.GetFile(name)
	if err != nil {
		return nil, &os.PathError{Op: op, Path: name, Err: err}
	}
	return f, nil
}

// toPathError maps vfs and storage failures to the os errors the protocol
// engine understands.
func toPathError(op, name string, err error) error {
	switch {
	case errors.Is(err, vfs.ErrPermissionDenied):
		err = os.ErrPermission
	case storage.IsNotFound(err):
		err = os.ErrNotExist
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

// ============================================================================
// Metadata
// ============================================================================

// Stat reports the status of name. Directories the account cannot read are
// reported as permission denied, which is what refuses CWD into them.
func (d *clientDriver) Stat(name string) (_ os.FileInfo, err error) {
	defer d.observe("stat", time.Now(), &err)

	f, err := d.file("stat", name)
	if err != nil {
		return nil, err
	}
	st, err := f.Status(d.ctx)
	if err != nil {
		return nil, toPathError("stat", name, err)
	}
	if st.IsDir && !f.IsReadable(d.ctx) {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}
	return newFileInfo(f.Name(), st), nil
}

// Chtimes sets the modification time (MFMT). atime is ignored; the backend
// time pair is set from mtime.
func (d *clientDriver) Chtimes(name string, _ time.Time, mtime time.Time) (err error) {
	defer d.observe("chtimes", time.Now(), &err)

	f, err := d.file("chtimes", name)
	if err != nil {
		return err
	}
	if !f.Exists(d.ctx) {
		return &os.PathError{Op: "chtimes", Path: name, Err: os.ErrNotExist}
	}
	if !f.IsWritable(d.ctx) {
		return &os.PathError{Op: "chtimes", Path: name, Err: os.ErrPermission}
	}
	if !f.SetLastModified(d.ctx, mtime) {
		return &os.PathError{Op: "chtimes", Path: name, Err: errors.New("backend refused time change")}
	}
	return nil
}

// Chmod is not supported: permissions belong to the backend.
func (d *clientDriver) Chmod(name string, _ os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: errNotSupported}
}

// Chown is not supported: ownership is always the logged-in account.
func (d *clientDriver) Chown(name string, _, _ int) error {
	return &os.PathError{Op: "chown", Path: name, Err: errNotSupported}
}

// ============================================================================
// Namespace
// ============================================================================

func (d *clientDriver) Mkdir(name string, _ os.FileMode) (err error) {
	defer d.observe("mkdir", time.Now(), &err)

	f, err := d.file("mkdir", name)
	if err != nil {
		return err
	}
	if f.Exists(d.ctx) {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
	}
	return d.mkdir(f, name)
}

func (d *clientDriver) MkdirAll(name string, _ os.FileMode) (err error) {
	defer d.observe("mkdir", time.Now(), &err)

	f, err := d.file("mkdir", name)
	if err != nil {
		return err
	}
	if f.IsDirectory(d.ctx) {
		return nil
	}
	return d.mkdir(f, name)
}

func (d *clientDriver) mkdir(f *vfs.FileHandle, name string) error {
	if !f.IsWritable(d.ctx) {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrPermission}
	}
	if !f.Mkdir(d.ctx) {
		return &os.PathError{Op: "mkdir", Path: name, Err: errors.New("backend refused directory creation")}
	}
	logger.Debug("FTP mkdir %s by %s", f.BackingPath(), d.view.Account().Name())
	return nil
}

// Remove deletes a file or a directory with its content (DELE, RMD).
func (d *clientDriver) Remove(name string) (err error) {
	defer d.observe("remove", time.Now(), &err)

	f, err := d.file("remove", name)
	if err != nil {
		return err
	}
	if !f.Exists(d.ctx) {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrNotExist}
	}
	if !f.IsRemovable(d.ctx) {
		return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
	}
	if !f.Delete(d.ctx) {
		return &os.PathError{Op: "remove", Path: name, Err: errors.New("backend refused deletion")}
	}
	logger.Debug("FTP remove %s by %s", f.BackingPath(), d.view.Account().Name())
	return nil
}

func (d *clientDriver) RemoveAll(name string) error {
	return d.Remove(name)
}

// Rename moves oldname to newname (RNFR/RNTO).
func (d *clientDriver) Rename(oldname, newname string) (err error) {
	defer d.observe("rename", time.Now(), &err)

	src, err := d.file("rename", oldname)
	if err != nil {
		return err
	}
	dst, err := d.file("rename", newname)
	if err != nil {
		return err
	}

	if !src.Exists(d.ctx) {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrNotExist}
	}
	if !src.IsRemovable(d.ctx) {
		return &os.PathError{Op: "rename", Path: oldname, Err: os.ErrPermission}
	}
	if !dst.IsWritable(d.ctx) {
		return &os.PathError{Op: "rename", Path: newname, Err: os.ErrPermission}
	}
	if !src.Move(d.ctx, dst) {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: errors.New("backend refused rename")}
	}
	return nil
}

// ============================================================================
// Streams
// ============================================================================

func (d *clientDriver) Open(name string) (afero.File, error) {
	return d.OpenFile(name, os.O_RDONLY, 0)
}

func (d *clientDriver) Create(name string) (afero.File, error) {
	return d.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile opens an upload stream when flag asks for writing, and a
// download stream or a directory listing otherwise.
func (d *clientDriver) OpenFile(name string, flag int, _ os.FileMode) (afero.File, error) {
	f, err := d.file("open", name)
	if err != nil {
		return nil, err
	}
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return d.openWrite(f, name, flag)
	}
	return d.openRead(f, name)
}

func (d *clientDriver) openWrite(f *vfs.FileHandle, name string, flag int) (_ afero.File, err error) {
	defer d.observe("open_write", time.Now(), &err)

	if flag&os.O_APPEND != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: errAppendNotSupported}
	}
	w, err := f.OpenForWrite(d.ctx, 0)
	if err != nil {
		return nil, toPathError("open", name, err)
	}

	logger.Debug("FTP upload %s by %s (limit=%d B/s)", f.BackingPath(), d.view.Account().Name(), d.uploadRate)
	return &handle{
		ctx:       d.ctx,
		name:      name,
		file:      f,
		writer:    ratelimiter.NewWriter(d.ctx, w, d.uploadRate),
		closer:    w,
		direction: metrics.DirectionUpload,
		metrics:   d.metrics,
	}, nil
}

func (d *clientDriver) openRead(f *vfs.FileHandle, name string) (_ afero.File, err error) {
	if f.IsDirectory(d.ctx) {
		defer d.observe("list", time.Now(), &err)

		entries, ok := f.Entries(d.ctx)
		if !ok {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
		}
		return &handle{ctx: d.ctx, name: name, file: f, dir: true, entries: entries, metrics: d.metrics}, nil
	}

	defer d.observe("open_read", time.Now(), &err)

	r, err := f.OpenForRead(d.ctx, 0)
	if err != nil {
		return nil, toPathError("open", name, err)
	}

	logger.Debug("FTP download %s by %s (limit=%d B/s)", f.BackingPath(), d.view.Account().Name(), d.downloadRate)
	return &handle{
		ctx:       d.ctx,
		name:      name,
		file:      f,
		reader:    ratelimiter.NewReader(d.ctx, r, d.downloadRate),
		closer:    r,
		direction: metrics.DirectionDownload,
		metrics:   d.metrics,
	}, nil
}

func (d *clientDriver) String() string {
	return fmt.Sprintf("clientDriver(%s)", d.view.Account().Name())
}
