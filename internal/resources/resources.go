// SPDX-License-Identifier: MPL-2.0

// Package resources composes the host's resource containers and every
// installed module payload into one lookup view.
package resources

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/CtripMobile/DynamicAPK/pkg/storage"
)

// ErrNotFound is returned when no container holds the requested resource.
var ErrNotFound = errors.New("resource not found")

// Compositor is a layered resource view. Host containers come first, then
// module payloads in the order given to Rebuild. The first container
// holding a name wins.
type Compositor struct {
	mu    sync.RWMutex
	paths []string
}

// New returns an empty Compositor.
func New() *Compositor { return &Compositor{} }

// Rebuild replaces the view with hostPaths followed by modulePaths.
// Containers may be ZIP files or directories.
func (c *Compositor) Rebuild(hostPaths, modulePaths []string) {
	next := make([]string, 0, len(hostPaths)+len(modulePaths))
	next = append(next, hostPaths...)
	next = append(next, modulePaths...)

	c.mu.Lock()
	c.paths = next
	c.mu.Unlock()
}

// Paths returns the containers in lookup order.
func (c *Compositor) Paths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.paths)
}

// Open returns the named resource from the first container holding it,
// along with that container's path. Unreadable containers are skipped.
func (c *Compositor) Open(name string) (io.ReadCloser, string, error) {
	if !fs.ValidPath(name) {
		return nil, "", fmt.Errorf("invalid resource name %q", name)
	}
	for _, p := range c.Paths() {
		rc, err := openIn(p, name)
		if err == nil {
			return rc, p, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("skipping unreadable resource container", "container", p, "error", err)
		}
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

func openIn(container, name string) (io.ReadCloser, error) {
	info, err := os.Stat(container)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return os.Open(filepath.Join(container, filepath.FromSlash(name)))
	}
	return storage.OpenPayloadEntry(container, name)
}
