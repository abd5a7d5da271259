package vfs

import "errors"

var (
	// ErrPermissionDenied is returned by stream-opening operations when the
	// account may not read or write the path.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrViewDisposed is returned by a View after Dispose.
	ErrViewDisposed = errors.New("filesystem view disposed")

	// ErrHomeNotAbsolute is returned by CreateView for an account whose home
	// directory is empty or relative.
	ErrHomeNotAbsolute = errors.New("home directory is not an absolute path")

	// ErrHomeNotDirectory reports a home directory path occupied by a file.
	ErrHomeNotDirectory = errors.New("home directory is not a directory")
)
