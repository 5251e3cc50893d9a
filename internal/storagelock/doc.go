// SPDX-License-Identifier: MPL-2.0

// Package storagelock guards a storage root against concurrent use by more
// than one host process. The lock is an exclusive flock on <root>/.lock; the
// kernel drops it when the descriptor closes, including on crash, so an
// orphaned lock file is harmless.
package storagelock

import "errors"

// FileName is the lock file created inside the guarded directory.
const FileName = ".lock"

var (
	// ErrLocked is returned when another process holds the lock.
	ErrLocked = errors.New("storage root is locked by another process")

	// ErrUnsupported is returned on platforms without flock. Callers fall
	// back to running unguarded.
	ErrUnsupported = errors.New("storage lock not available on this platform")
)
