// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError via errors.Is.
	ErrStorage = errors.New("storage error")

	// ErrCorruptMetadata is returned when a metadata record is truncated,
	// garbled or carries trailing bytes.
	ErrCorruptMetadata = errors.New("corrupt metadata record")

	// ErrNoRevisions is returned when a module directory holds no usable
	// version_<n> directory.
	ErrNoRevisions = errors.New("no revisions found")

	// ErrInvalidPayload matches every *ValidationError via errors.Is.
	ErrInvalidPayload = errors.New("invalid payload")
)

type (
	// StorageError reports an I/O or layout failure under the storage root.
	StorageError struct {
		Op   string
		Path string
		Err  error
	}

	// ValidationError reports a payload that failed the structural check.
	ValidationError struct {
		Path   string
		Reason string
		Err    error
	}
)

func newStorageError(op, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage: %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid payload %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid payload %s: %s: %v", e.Path, e.Reason, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidPayload.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPayload }
