// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package storagelock

// Lock is the stub for platforms without flock.
type Lock struct{}

// Acquire always fails with ErrUnsupported.
func Acquire(string) (*Lock, error) { return nil, ErrUnsupported }

// Path returns "".
func (l *Lock) Path() string { return "" }

// Release is a no-op.
func (l *Lock) Release() {}
