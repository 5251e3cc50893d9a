// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"errors"
	"fmt"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

var (
	// ErrModuleNotFound is returned when no module is registered at a location.
	ErrModuleNotFound = errors.New("module not found")
	// ErrNilPayload is returned when an install or update has no payload.
	ErrNilPayload = errors.New("nil module payload")
	// ErrNotStarted is returned by operations called before Startup or after
	// Shutdown.
	ErrNotStarted = errors.New("registry not started")
	// ErrAlreadyStarted is returned by a second Startup.
	ErrAlreadyStarted = errors.New("registry already started")
)

// ModuleError adds module context to a failed registry operation.
type ModuleError struct {
	Location types.Location
	Op       string
	Err      error
}

// Error implements the error interface.
func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s module %q: %v", e.Op, e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModuleError) Unwrap() error { return e.Err }

func moduleError(op string, location types.Location, err error) error {
	if err == nil {
		return nil
	}
	return &ModuleError{Location: location, Op: op, Err: err}
}
