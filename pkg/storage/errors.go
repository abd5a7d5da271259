package storage

import (
	"errors"
	"fmt"
)

// StorageError represents a domain error reported by a storage backend.
//
// Backends translate their native failures (os errors, S3 API errors,
// database errors) into a StorageError so that callers can classify
// failures without knowing which backend is in use.
type StorageError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the backing path related to the error (if applicable)
	Path string

	// Err is the underlying backend error, if any
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying backend error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a storage error.
type ErrorCode int

const (
	// ErrNotFound indicates the path does not exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates the target path already exists
	ErrAlreadyExists

	// ErrNotEmpty indicates a directory is not empty and recursive was not requested
	ErrNotEmpty

	// ErrIsDirectory indicates the operation expected a file but got a directory
	ErrIsDirectory

	// ErrNotDirectory indicates the operation expected a directory but got a file
	ErrNotDirectory

	// ErrInvalidArgument indicates invalid parameters were provided
	ErrInvalidArgument

	// ErrIOError indicates the backend failed to complete the request
	ErrIOError

	// ErrNotSupported indicates the backend cannot perform the operation
	ErrNotSupported
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrNotEmpty:
		return "directory not empty"
	case ErrIsDirectory:
		return "is a directory"
	case ErrNotDirectory:
		return "not a directory"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "i/o error"
	case ErrNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("error code %d", int(c))
	}
}

// NewError creates a StorageError with the code's default message.
func NewError(code ErrorCode, path string, err error) *StorageError {
	return &StorageError{Code: code, Message: code.String(), Path: path, Err: err}
}

// NewNotFoundError creates an ErrNotFound error for path.
func NewNotFoundError(path string) *StorageError {
	return NewError(ErrNotFound, path, nil)
}

// NewIOError wraps a backend failure on path.
func NewIOError(path string, err error) *StorageError {
	return NewError(ErrIOError, path, err)
}

// CodeOf returns the ErrorCode carried by err and whether err is a StorageError.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err is an ErrNotFound storage error.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotFound
}

// IsAlreadyExists reports whether err is an ErrAlreadyExists storage error.
func IsAlreadyExists(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrAlreadyExists
}

// IsNotEmpty reports whether err is an ErrNotEmpty storage error.
func IsNotEmpty(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotEmpty
}
