// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLocationBytes is the largest encoded location accepted. Locations are
// persisted as length-prefixed strings with a 16-bit length.
const MaxLocationBytes = 0xFFFF

// ErrInvalidLocation is the sentinel error wrapped by InvalidLocationError.
var ErrInvalidLocation = errors.New("invalid module location")

type (
	// Location is the unique string key a module is registered under
	// (e.g. "com.example.payment").
	Location string

	// InvalidLocationError is returned when a Location is empty, whitespace-only,
	// not valid UTF-8, or too long to persist.
	InvalidLocationError struct {
		Value  Location
		Reason string
	}
)

// String returns the string representation of the Location.
func (l Location) String() string { return string(l) }

// Validate returns an error if the Location cannot be used as a registry key.
func (l Location) Validate() error {
	switch {
	case strings.TrimSpace(string(l)) == "":
		return &InvalidLocationError{Value: l, Reason: "must be non-empty"}
	case !utf8.ValidString(string(l)):
		return &InvalidLocationError{Value: l, Reason: "must be valid UTF-8"}
	case len(l) > MaxLocationBytes:
		return &InvalidLocationError{Value: l, Reason: fmt.Sprintf("must be at most %d bytes", MaxLocationBytes)}
	}
	return nil
}

// Error implements the error interface for InvalidLocationError.
func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("invalid module location %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidLocation for errors.Is() compatibility.
func (e *InvalidLocationError) Unwrap() error { return ErrInvalidLocation }
