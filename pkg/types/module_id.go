// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

// FirstModuleID is the id handed out to the first module installed into an
// empty storage root.
const FirstModuleID ModuleID = 1

// ErrInvalidModuleID is the sentinel error wrapped by InvalidModuleIDError.
var ErrInvalidModuleID = errors.New("invalid module id")

type (
	// ModuleID is the stable numeric identity assigned to a module at install
	// time. It doubles as the module's directory name under the storage root.
	ModuleID uint64

	// InvalidModuleIDError is returned when a ModuleID is zero.
	InvalidModuleIDError struct {
		Value ModuleID
	}
)

// ParseModuleID parses a decimal module id, e.g. a storage directory name.
func ParseModuleID(s string) (ModuleID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse module id %q: %w", s, err)
	}
	id := ModuleID(n)
	if err := id.Validate(); err != nil {
		return 0, err
	}
	return id, nil
}

// String returns the decimal string representation of the ModuleID.
func (id ModuleID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Validate returns an error if the ModuleID is zero.
func (id ModuleID) Validate() error {
	if id == 0 {
		return &InvalidModuleIDError{Value: id}
	}
	return nil
}

// Error implements the error interface for InvalidModuleIDError.
func (e *InvalidModuleIDError) Error() string {
	return fmt.Sprintf("invalid module id %d: must be greater than zero", e.Value)
}

// Unwrap returns ErrInvalidModuleID for errors.Is() compatibility.
func (e *InvalidModuleIDError) Unwrap() error { return ErrInvalidModuleID }
