// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/CtripMobile/DynamicAPK/internal/metrics"
	"github.com/CtripMobile/DynamicAPK/internal/resources"
	"github.com/CtripMobile/DynamicAPK/internal/storagelock"
	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// Registry lifecycle states.
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
)

type (
	// Options configures a Registry.
	Options struct {
		// Injector splices module payloads into the host search path.
		// PrepareAll skips injection when nil.
		Injector bundle.Injector
		// HostResources are the host's own resource containers, consulted
		// before any module payload.
		HostResources []string
		// Resources receives the merged resource view. A new compositor is
		// created when nil.
		Resources *resources.Compositor
		Metrics   *metrics.Metrics
		Logger    *slog.Logger
	}

	// Config is the startup configuration.
	Config struct {
		// BaseDir anchors relative storage locations and holds the build key.
		BaseDir string
		// StorageLocation is the storage root, relative to BaseDir unless
		// absolute.
		StorageLocation string
		// FreshInit wipes the storage root before use.
		FreshInit bool
		// BuildKey identifies the host build. When it differs from the key
		// recorded by the previous startup the storage root is wiped as if
		// FreshInit were set.
		BuildKey string
	}

	// Registry tracks the installed modules of one host process.
	Registry struct {
		state atomic.Int32

		injector  bundle.Injector
		hostRes   []string
		resources *resources.Compositor
		metrics   *metrics.Metrics
		logger    *slog.Logger

		cfg  Config
		root string
		lock *storagelock.Lock

		mu      sync.RWMutex
		modules map[types.Location]*bundle.Module

		// installMu serializes installs so that concurrent installs of one
		// location register a single module.
		installMu sync.Mutex

		idMu   sync.Mutex
		nextID types.ModuleID

		listenerMu       sync.Mutex
		listenerID       uint64
		syncListeners    []listener
		delayedListeners []listener

		// dispatchMu orders delayed listener dispatch against Shutdown:
		// no dispatch starts once Shutdown has begun waiting.
		dispatchMu sync.Mutex
		delayedWG  sync.WaitGroup
	}
)

// New returns a Registry. Call Startup before using it.
func New(opts Options) *Registry {
	r := &Registry{
		injector:  opts.Injector,
		hostRes:   slices.Clone(opts.HostResources),
		resources: opts.Resources,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		modules:   map[types.Location]*bundle.Module{},
	}
	if r.resources == nil {
		r.resources = resources.New()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Root returns the storage root resolved by Startup.
func (r *Registry) Root() string { return r.root }

// Config returns the configuration passed to Startup.
func (r *Registry) Config() Config { return r.cfg }

// Resources returns the merged resource view rebuilt by PrepareAll.
func (r *Registry) Resources() *resources.Compositor { return r.resources }

func (r *Registry) counterPath() string { return filepath.Join(r.root, storage.MetaFileName) }

func (r *Registry) running() error {
	if r.state.Load() != stateRunning {
		return ErrNotStarted
	}
	return nil
}

// ResolveStorageRoot joins a relative storage location onto baseDir.
func ResolveStorageRoot(baseDir, location string) string {
	if filepath.IsAbs(location) {
		return filepath.Clean(location)
	}
	return filepath.Join(baseDir, location)
}

// Startup locks the storage root and restores the registry from it, or
// wipes it when cfg.FreshInit is set or the build key changed.
func (r *Registry) Startup(ctx context.Context, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !r.state.CompareAndSwap(stateCreated, stateRunning) {
		return ErrAlreadyStarted
	}

	if err := r.startup(cfg); err != nil {
		r.releaseLock()
		r.state.Store(stateCreated)
		return err
	}
	return nil
}

func (r *Registry) startup(cfg Config) error {
	r.cfg = cfg
	r.root = ResolveStorageRoot(cfg.BaseDir, cfg.StorageLocation)
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}

	lock, err := storagelock.Acquire(r.root)
	switch {
	case errors.Is(err, storagelock.ErrUnsupported):
		r.logger.Warn("storage root locking is not supported on this platform", "root", r.root)
	case err != nil:
		return err
	}
	r.lock = lock

	fresh := cfg.FreshInit
	if cfg.BuildKey != "" {
		changed, err := BuildKeyChanged(cfg.BaseDir, cfg.BuildKey)
		if err != nil {
			return err
		}
		if changed && !fresh {
			r.logger.Info("host build changed, clearing module storage", "build_key", cfg.BuildKey)
			fresh = true
		}
	}

	if fresh {
		err = r.freshInit()
	} else {
		err = r.restore()
	}
	if err != nil {
		return err
	}

	if cfg.BuildKey != "" {
		if err := SaveBuildKey(cfg.BaseDir, cfg.BuildKey); err != nil {
			return err
		}
	}
	r.metrics.SetModules(r.count())
	return nil
}

// freshInit removes everything under the storage root except the lock
// file and resets the id counter.
func (r *Registry) freshInit() error {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("clear storage root: %w", err)
	}
	for _, e := range entries {
		if e.Name() == storagelock.FileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.root, e.Name())); err != nil {
			return fmt.Errorf("clear storage root: %w", err)
		}
	}
	r.nextID = types.FirstModuleID
	r.logger.Info("initialized empty module storage", "root", r.root)
	return storage.WriteCounter(r.counterPath(), r.nextID)
}

// restore reads the id counter and reconstructs every module directory.
// Directories that cannot be opened are skipped.
func (r *Registry) restore() error {
	next, err := storage.ReadCounter(r.counterPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		next = types.FirstModuleID
	case err != nil:
		r.logger.Warn("module id counter unreadable, recomputing from storage", "error", err)
		next = types.FirstModuleID
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return fmt.Errorf("scan storage root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := types.ParseModuleID(e.Name()); err != nil {
			continue
		}
		dir := filepath.Join(r.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, storage.MetaFileName)); err != nil {
			continue
		}

		m, err := bundle.Open(dir)
		if err != nil {
			r.logger.Warn("skipping unreadable module", "dir", dir, "error", err)
			continue
		}
		if prev, ok := r.modules[m.Location()]; ok {
			r.logger.Warn("skipping duplicate module location", "dir", dir, "location", m.Location(), "registered", prev.ID())
			continue
		}
		r.modules[m.Location()] = m
		if m.ID() >= next {
			next = m.ID() + 1
		}
		r.logger.Debug("restored module", "module", m.String(), "revision", m.RevisionNumber())
	}

	r.nextID = next
	if err := storage.WriteCounter(r.counterPath(), next); err != nil {
		return err
	}
	r.logger.Info("restored module storage", "root", r.root, "modules", len(r.modules))
	return nil
}

// Shutdown waits for delayed listeners and releases the storage root.
// It is safe to call more than once.
func (r *Registry) Shutdown() {
	if !r.state.CompareAndSwap(stateRunning, stateStopped) {
		return
	}
	r.dispatchMu.Lock()
	r.dispatchMu.Unlock() //nolint:staticcheck // barrier for in-flight dispatches
	r.delayedWG.Wait()
	r.releaseLock()
}

func (r *Registry) releaseLock() {
	if r.lock != nil {
		r.lock.Release()
		r.lock = nil
	}
}

// NextID returns the id the next install will receive.
func (r *Registry) NextID() types.ModuleID {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return r.nextID
}

// allocateID hands out the next module id and persists the counter.
func (r *Registry) allocateID() (types.ModuleID, error) {
	r.idMu.Lock()
	defer r.idMu.Unlock()

	id := r.nextID
	if err := storage.WriteCounter(r.counterPath(), id+1); err != nil {
		return 0, err
	}
	r.nextID = id + 1
	return id, nil
}
