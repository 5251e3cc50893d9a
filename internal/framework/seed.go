// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"fmt"
	"strings"

	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// SeedLocation derives a module location from a container entry name,
// e.g. "assets/baseres/com_example_pay.so" with prefix "assets/baseres/"
// and suffix ".so" gives "com.example.pay". ok is false when the entry is
// outside prefix or lacks suffix.
func SeedLocation(entry, prefix, suffix string) (types.Location, bool) {
	rest, ok := strings.CutPrefix(entry, prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, suffix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return types.Location(strings.ReplaceAll(rest, "_", ".")), true
}

// SeedFromContainer installs every module payload bundled in the host
// container at containerPath whose location is not registered yet. Entries
// that fail to install are logged and skipped. It returns the number of
// modules installed.
func (r *Registry) SeedFromContainer(ctx context.Context, containerPath, prefix, suffix string) (int, error) {
	if err := r.running(); err != nil {
		return 0, err
	}
	entries, err := storage.PayloadEntries(containerPath)
	if err != nil {
		return 0, fmt.Errorf("seed from %s: %w", containerPath, err)
	}

	installed := 0
	for _, name := range entries {
		if err := ctx.Err(); err != nil {
			return installed, err
		}
		loc, ok := SeedLocation(name, prefix, suffix)
		if !ok {
			continue
		}
		if _, exists := r.Get(loc); exists {
			continue
		}
		if err := r.seedOne(ctx, containerPath, name, loc); err != nil {
			r.logger.Warn("failed to seed module", "entry", name, "location", loc, "error", err)
			continue
		}
		installed++
	}
	if installed > 0 {
		r.logger.Info("seeded modules from host container", "container", containerPath, "installed", installed)
	}
	return installed, nil
}

func (r *Registry) seedOne(ctx context.Context, containerPath, name string, loc types.Location) error {
	rc, err := storage.OpenPayloadEntry(containerPath, name)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	_, err = r.Install(ctx, loc, rc)
	return err
}
