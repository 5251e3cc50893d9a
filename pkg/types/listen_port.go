// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrInvalidListenPort is the sentinel error wrapped by InvalidListenPortError.
var ErrInvalidListenPort = errors.New("invalid listen port")

type (
	// ListenPort is the TCP port serve exposes /metrics and /modules on.
	// Zero asks the kernel for a free port, which tests rely on.
	ListenPort int

	// InvalidListenPortError is returned for ports outside 0-65535.
	InvalidListenPortError struct {
		Value ListenPort
	}
)

func (p ListenPort) String() string { return strconv.Itoa(int(p)) }

// Ephemeral reports whether the port is picked at listen time.
func (p ListenPort) Ephemeral() bool { return p == 0 }

// Addr returns the host:port listen address for host.
func (p ListenPort) Addr(host string) string {
	return net.JoinHostPort(host, p.String())
}

// Validate rejects negative ports and ports above 65535.
func (p ListenPort) Validate() error {
	if p < 0 || p > 65535 {
		return &InvalidListenPortError{Value: p}
	}
	return nil
}

func (e *InvalidListenPortError) Error() string {
	return fmt.Sprintf("invalid metrics port %d: want 0 for any free port, or 1-65535", e.Value)
}

func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }
