// SPDX-License-Identifier: MPL-2.0

//go:build unix

package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/CtripMobile/DynamicAPK/internal/storagelock"
)

func TestRegistry_StorageRootLocked(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	startRegistry(t, cfg, Options{})

	second := New(Options{})
	if err := second.Startup(context.Background(), cfg); !errors.Is(err, storagelock.ErrLocked) {
		t.Fatalf("second Startup() error = %v, want ErrLocked", err)
	}
	if err := second.Startup(context.Background(), cfg); !errors.Is(err, storagelock.ErrLocked) {
		t.Errorf("retried Startup() error = %v, want ErrLocked", err)
	}
}
