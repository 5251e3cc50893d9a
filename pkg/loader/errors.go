// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"fmt"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

var (
	// ErrNoAdapter is returned when no adapter covers the host version.
	ErrNoAdapter = errors.New("no code load adapter for host version")

	// ErrHostMismatch is returned when the host lacks a capability the
	// selected adapter needs.
	ErrHostMismatch = errors.New("host does not provide the required loader capability")
)

// InjectionError reports a failed adapter lookup or artifact injection.
type InjectionError struct {
	Adapter string
	Version types.HostVersion
	Err     error
}

// Error implements the error interface.
func (e *InjectionError) Error() string {
	if e.Adapter == "" {
		return fmt.Sprintf("inject code (host %s): %v", e.Version, e.Err)
	}
	return fmt.Sprintf("inject code with %s adapter (host %s): %v", e.Adapter, e.Version, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InjectionError) Unwrap() error { return e.Err }

func hostMismatch(capability string) error {
	return fmt.Errorf("%w: missing %s", ErrHostMismatch, capability)
}
