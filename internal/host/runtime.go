// SPDX-License-Identifier: MPL-2.0

package host

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/CtripMobile/DynamicAPK/pkg/loader"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// ErrSymbolNotFound is returned when no search path element defines a symbol.
var ErrSymbolNotFound = errors.New("symbol not found")

type (
	// Options configures a Runtime.
	Options struct {
		// Version is the generation tag reported to the loader.
		Version types.HostVersion
		// Welcome is resolved in place of symbols no element defines.
		// Empty disables the fallback.
		Welcome string
		Logger  *slog.Logger
	}

	// Resolution is the outcome of ResolveEntry.
	Resolution struct {
		Symbol   string
		Artifact string
		// Fallback is set when Symbol is the welcome symbol standing in for
		// the requested one.
		Fallback bool
	}

	// Runtime is a host runtime whose search path is an ordered element list.
	Runtime struct {
		mu      sync.RWMutex
		version types.HostVersion
		welcome string
		logger  *slog.Logger
		elems   []loader.Element
	}

	symbolSource interface {
		Has(symbol string) bool
	}
)

var (
	_ loader.FieldArrayHost         = (*Runtime)(nil)
	_ loader.BatchElementHost       = (*Runtime)(nil)
	_ loader.SuppressingElementHost = (*Runtime)(nil)
	_ loader.SingleElementHost      = (*Runtime)(nil)
)

// New returns a Runtime with an empty search path.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{version: opts.Version, welcome: opts.Welcome, logger: logger}
}

// Preload appends the host's own artifacts to the search path.
func (r *Runtime) Preload(paths ...string) error {
	added, err := r.MakeElements(paths, "")
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elems = append(r.elems, added...)
	return nil
}

// Generation implements loader.HostLoader.
func (r *Runtime) Generation() types.HostVersion { return r.version }

// Elements implements loader.ElementListHost.
func (r *Runtime) Elements() []loader.Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.elems)
}

// SetElements implements loader.ElementListHost.
func (r *Runtime) SetElements(elems []loader.Element) error {
	for i, e := range elems {
		if e.Code == nil {
			return fmt.Errorf("element %d (%s): no code", i, e.Artifact)
		}
	}
	r.mu.Lock()
	r.elems = slices.Clone(elems)
	r.mu.Unlock()
	return nil
}

// Fields implements loader.FieldArrayHost by projecting the element list.
func (r *Runtime) Fields() loader.ParallelFields {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f := loader.ParallelFields{
		Paths:    make([]string, len(r.elems)),
		Files:    make([]string, len(r.elems)),
		Archives: make([]loader.Code, len(r.elems)),
		Code:     make([]loader.Code, len(r.elems)),
	}
	for i, e := range r.elems {
		f.Paths[i] = e.Artifact
		f.Files[i] = e.Artifact
		f.Archives[i] = e.Code
		f.Code[i] = e.Code
	}
	f.PathList = strings.Join(f.Paths, string(filepath.ListSeparator))
	return f
}

// SetFields implements loader.FieldArrayHost.
func (r *Runtime) SetFields(f loader.ParallelFields) error {
	n := len(f.Paths)
	if len(f.Files) != n || len(f.Archives) != n || len(f.Code) != n {
		return fmt.Errorf("parallel fields out of step: %d paths, %d files, %d archives, %d code",
			n, len(f.Files), len(f.Archives), len(f.Code))
	}
	elems := make([]loader.Element, n)
	for i := range n {
		elems[i] = loader.Element{Artifact: f.Paths[i], Code: f.Code[i]}
	}
	return r.SetElements(elems)
}

// OpenArchive implements loader.FieldArrayHost.
func (r *Runtime) OpenArchive(path string) (loader.Code, error) {
	return IndexArtifact(path, "")
}

// LoadCode implements loader.FieldArrayHost and loader.SingleElementHost.
func (r *Runtime) LoadCode(path, workDir string) (loader.Code, error) {
	return IndexArtifact(path, workDir)
}

// NewElement implements loader.SingleElementHost.
func (r *Runtime) NewElement(artifact string, code loader.Code) (loader.Element, error) {
	if code == nil {
		return loader.Element{}, fmt.Errorf("element for %s: no code", artifact)
	}
	return loader.Element{Artifact: artifact, Code: code}, nil
}

// MakeElements implements loader.BatchElementHost.
func (r *Runtime) MakeElements(artifacts []string, workDir string) ([]loader.Element, error) {
	out := make([]loader.Element, 0, len(artifacts))
	for _, p := range artifacts {
		a, err := IndexArtifact(p, workDir)
		if err != nil {
			return nil, err
		}
		out = append(out, loader.Element{Artifact: p, Code: a})
	}
	return out, nil
}

// MakeElementsSuppressed implements loader.SuppressingElementHost.
func (r *Runtime) MakeElementsSuppressed(artifacts []string, workDir string) ([]loader.Element, []error) {
	var (
		out  []loader.Element
		errs []error
	)
	for _, p := range artifacts {
		a, err := IndexArtifact(p, workDir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, loader.Element{Artifact: p, Code: a})
	}
	return out, errs
}

// SearchPath returns the artifact paths in resolution order.
func (r *Runtime) SearchPath() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.elems))
	for i, e := range r.elems {
		out[i] = e.Artifact
	}
	return out
}

// Resolve returns the first artifact on the search path defining symbol.
func (r *Runtime) Resolve(symbol string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.elems {
		if src, ok := e.Code.(symbolSource); ok && src.Has(symbol) {
			return e.Artifact, true
		}
	}
	return "", false
}

// ResolveEntry resolves symbol, standing in the welcome symbol when no
// element defines it.
func (r *Runtime) ResolveEntry(symbol string) (Resolution, error) {
	if artifact, ok := r.Resolve(symbol); ok {
		return Resolution{Symbol: symbol, Artifact: artifact}, nil
	}
	if r.welcome == "" || r.welcome == symbol {
		return Resolution{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	artifact, ok := r.Resolve(r.welcome)
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s (welcome fallback %s missing too)", ErrSymbolNotFound, symbol, r.welcome)
	}
	r.logger.Info("symbol not found, redirecting to welcome entry", "symbol", symbol, "welcome", r.welcome)
	return Resolution{Symbol: r.welcome, Artifact: artifact, Fallback: true}, nil
}
