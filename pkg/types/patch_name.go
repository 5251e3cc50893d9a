// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ResetMarker is the suffix a patch name carries to request that any
// installed patch with the same base name is dropped first.
const ResetMarker = "_rst"

// ErrInvalidPatchName is the sentinel error wrapped by InvalidPatchNameError.
var ErrInvalidPatchName = errors.New("invalid patch name")

type (
	// PatchName is the caller-supplied name of a hot patch, e.g. "payfix" or
	// "payfix_rst".
	PatchName string

	// InvalidPatchNameError is returned when a PatchName cannot be used as a
	// directory name component.
	InvalidPatchNameError struct {
		Value  PatchName
		Reason string
	}
)

// String returns the string representation of the PatchName.
func (p PatchName) String() string { return string(p) }

// BaseName returns the name with everything from the last reset marker on
// removed. Names without the marker are returned unchanged.
func (p PatchName) BaseName() string {
	s := string(p)
	if i := strings.LastIndex(s, ResetMarker); i >= 0 {
		return s[:i]
	}
	return s
}

// HasReset reports whether the name carries the reset marker.
func (p PatchName) HasReset() bool {
	return strings.LastIndex(string(p), ResetMarker) >= 0
}

// Validate returns an error if the PatchName is empty or would escape the
// patch root when used as a directory name.
func (p PatchName) Validate() error {
	s := string(p)
	switch {
	case strings.TrimSpace(s) == "":
		return &InvalidPatchNameError{Value: p, Reason: "must be non-empty"}
	case strings.ContainsAny(s, `/\`):
		return &InvalidPatchNameError{Value: p, Reason: "must not contain path separators"}
	case s == "." || s == "..":
		return &InvalidPatchNameError{Value: p, Reason: "must not be a relative directory reference"}
	case p.BaseName() == "":
		return &InvalidPatchNameError{Value: p, Reason: "base name before the reset marker must be non-empty"}
	}
	return nil
}

// Error implements the error interface for InvalidPatchNameError.
func (e *InvalidPatchNameError) Error() string {
	return fmt.Sprintf("invalid patch name %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPatchName for errors.Is() compatibility.
func (e *InvalidPatchNameError) Unwrap() error { return ErrInvalidPatchName }
