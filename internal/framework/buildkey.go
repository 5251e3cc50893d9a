// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BuildKeyFileName records the host build key of the previous startup.
const BuildKeyFileName = "last_build_key"

// BuildKeyChanged reports whether key differs from the one recorded in
// baseDir. A missing record counts as changed.
func BuildKeyChanged(baseDir, key string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, BuildKeyFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read build key: %w", err)
	}
	return string(bytes.TrimSpace(data)) != key, nil
}

// SaveBuildKey records key in baseDir.
func SaveBuildKey(baseDir, key string) error {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("save build key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(baseDir, BuildKeyFileName), []byte(key+"\n"), 0o644); err != nil {
		return fmt.Errorf("save build key: %w", err)
	}
	return nil
}
