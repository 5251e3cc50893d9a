// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"cmp"
	"context"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// Install stores payload as revision 1 of a new module at location. When
// location is already registered the existing module is returned and
// payload is not read.
func (r *Registry) Install(ctx context.Context, location types.Location, payload io.Reader) (*bundle.Module, error) {
	if payload == nil {
		return r.install(ctx, location, nil)
	}
	return r.install(ctx, location, func(dir string, id types.ModuleID) (*bundle.Module, error) {
		return bundle.Create(dir, location, id, payload)
	})
}

// InstallReference registers a module whose payload stays at path instead
// of being copied into the storage root.
func (r *Registry) InstallReference(ctx context.Context, location types.Location, path string) (*bundle.Module, error) {
	return r.install(ctx, location, func(dir string, id types.ModuleID) (*bundle.Module, error) {
		return bundle.CreateReference(dir, location, id, path)
	})
}

func (r *Registry) install(ctx context.Context, location types.Location, create func(string, types.ModuleID) (*bundle.Module, error)) (m *bundle.Module, err error) {
	defer func() { r.metrics.ObserveOperation("install", err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.running(); err != nil {
		return nil, moduleError("install", location, err)
	}
	if err := location.Validate(); err != nil {
		return nil, moduleError("install", location, err)
	}

	r.installMu.Lock()
	defer r.installMu.Unlock()

	if existing, ok := r.Get(location); ok {
		r.logger.Debug("module already installed", "module", existing.String())
		return existing, nil
	}
	if create == nil {
		return nil, moduleError("install", location, ErrNilPayload)
	}

	id, err := r.allocateID()
	if err != nil {
		return nil, moduleError("install", location, err)
	}
	dir := filepath.Join(r.root, id.String())
	m, err = create(dir, id)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, moduleError("install", location, err)
	}

	r.mu.Lock()
	r.modules[location] = m
	n := len(r.modules)
	r.mu.Unlock()

	r.metrics.SetModules(n)
	r.logger.Info("installed module", "module", m.String(), "state", m.State())
	return m, nil
}

// Update stores payload as the next revision of the module at location.
func (r *Registry) Update(ctx context.Context, location types.Location, payload io.Reader) (err error) {
	defer func() { r.metrics.ObserveOperation("update", err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.running(); err != nil {
		return moduleError("update", location, err)
	}
	m, ok := r.Get(location)
	if !ok {
		return moduleError("update", location, ErrModuleNotFound)
	}
	if payload == nil {
		return moduleError("update", location, ErrNilPayload)
	}

	rev, err := m.Update(payload)
	if err != nil {
		return moduleError("update", location, err)
	}
	r.logger.Info("updated module", "module", m.String(), "revision", rev.Number())
	return nil
}

// Uninstall rolls the module at location back by one revision. Failures
// are logged.
func (r *Registry) Uninstall(ctx context.Context, location types.Location) {
	var err error
	defer func() { r.metrics.ObserveOperation("uninstall", err) }()

	if err = ctx.Err(); err != nil {
		r.logger.Warn("uninstall refused", "location", location, "error", err)
		return
	}
	m, ok := r.Get(location)
	if !ok {
		err = ErrModuleNotFound
		r.logger.Warn("uninstall of unknown module", "location", location)
		return
	}
	if err = m.Purge(); err != nil {
		r.logger.Error("failed to purge module revision", "module", m.String(), "error", err)
		return
	}
	r.logger.Info("purged module revision", "module", m.String(), "revision", m.RevisionNumber())
}

// Get returns the module registered at location.
func (r *Registry) Get(location types.Location) (*bundle.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[location]
	return m, ok
}

// GetByID returns the module with the given id.
func (r *Registry) GetByID(id types.ModuleID) (*bundle.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.modules {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

// List returns a snapshot of the registered modules ordered by id.
func (r *Registry) List() []*bundle.Module {
	r.mu.RLock()
	mods := slices.Collect(maps.Values(r.modules))
	r.mu.RUnlock()

	slices.SortFunc(mods, func(a, b *bundle.Module) int { return cmp.Compare(a.ID(), b.ID()) })
	return mods
}

func (r *Registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// OpenAsset streams a resource out of the current revision of the module
// at location.
func (r *Registry) OpenAsset(location types.Location, name string) (io.ReadCloser, error) {
	m, ok := r.Get(location)
	if !ok {
		return nil, moduleError("open asset", location, ErrModuleNotFound)
	}
	rc, err := m.OpenAsset(name)
	if err != nil {
		return nil, moduleError("open asset", location, err)
	}
	return rc, nil
}

// PayloadPath returns the current payload file of the module at location.
func (r *Registry) PayloadPath(location types.Location) (string, error) {
	m, ok := r.Get(location)
	if !ok {
		return "", moduleError("payload path", location, ErrModuleNotFound)
	}
	return m.PayloadPath(), nil
}
