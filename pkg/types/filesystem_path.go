// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidFilesystemPath is the sentinel error wrapped by InvalidFilesystemPathError.
var ErrInvalidFilesystemPath = errors.New("invalid filesystem path")

type (
	// FilesystemPath is a configured directory such as the base dir, the
	// module storage root or the hot patch root. Relative values are
	// resolved with Under.
	FilesystemPath string

	// InvalidFilesystemPathError is returned for blank paths.
	InvalidFilesystemPathError struct {
		Value FilesystemPath
	}
)

func (p FilesystemPath) String() string { return string(p) }

// Under returns p when it is absolute and base joined with p otherwise.
// The result is cleaned.
func (p FilesystemPath) Under(base FilesystemPath) FilesystemPath {
	if filepath.IsAbs(string(p)) {
		return FilesystemPath(filepath.Clean(string(p)))
	}
	return FilesystemPath(filepath.Join(string(base), string(p)))
}

// Validate rejects empty and whitespace-only paths.
func (p FilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidFilesystemPathError{Value: p}
	}
	return nil
}

func (e *InvalidFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid filesystem path %q: must not be blank", e.Value)
}

func (e *InvalidFilesystemPathError) Unwrap() error { return ErrInvalidFilesystemPath }
