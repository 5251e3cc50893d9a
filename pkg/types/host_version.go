// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidHostVersion is the sentinel error wrapped by InvalidHostVersionError.
var ErrInvalidHostVersion = errors.New("invalid host version")

type (
	// HostVersion tags the generation of the host runtime the code injector
	// talks to. Tags are semver-like with an optional leading "v"
	// ("23", "v19", "v4.1.2").
	HostVersion string

	// InvalidHostVersionError is returned when a HostVersion does not parse.
	InvalidHostVersionError struct {
		Value HostVersion
	}
)

// String returns the string representation of the HostVersion.
func (v HostVersion) String() string { return string(v) }

// Canonical returns the tag in golang.org/x/mod/semver canonical form
// ("v23" becomes "v23.0.0"), or "" if the tag is invalid.
func (v HostVersion) Canonical() string {
	s := strings.TrimSpace(string(v))
	if s != "" && !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	return semver.Canonical(s)
}

// Compare returns -1, 0 or +1 comparing v to other in semver order.
// Invalid tags sort before every valid one.
func (v HostVersion) Compare(other HostVersion) int {
	return semver.Compare(v.Canonical(), other.Canonical())
}

// Validate returns an error if the HostVersion is not a semver-like tag.
func (v HostVersion) Validate() error {
	if v.Canonical() == "" {
		return &InvalidHostVersionError{Value: v}
	}
	return nil
}

// Error implements the error interface for InvalidHostVersionError.
func (e *InvalidHostVersionError) Error() string {
	return fmt.Sprintf("invalid host version %q: must be a version tag like \"v23\" or \"19.1\"", e.Value)
}

// Unwrap returns ErrInvalidHostVersion for errors.Is() compatibility.
func (e *InvalidHostVersionError) Unwrap() error { return ErrInvalidHostVersion }
