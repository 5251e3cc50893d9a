// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

type (
	// Observer is told about every injection attempt.
	Observer func(adapter string, artifacts int, elapsed time.Duration, err error)

	// InjectorOption configures an Injector.
	InjectorOption func(*Injector)

	// Injector installs artifacts into one host through the adapter chosen
	// for the host's generation. Installs are serialized.
	Injector struct {
		mu       sync.Mutex
		host     HostLoader
		version  types.HostVersion
		adapter  CodeLoadAdapter
		observer Observer
		logger   *slog.Logger
	}
)

// WithObserver registers fn to be called after every injection attempt.
func WithObserver(fn Observer) InjectorOption {
	return func(i *Injector) { i.observer = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) InjectorOption {
	return func(i *Injector) { i.logger = l }
}

// NewInjector selects the adapter for host.Generation() from table.
func NewInjector(host HostLoader, table Table, opts ...InjectorOption) (*Injector, error) {
	v := host.Generation()
	adapter, err := table.Lookup(v)
	if err != nil {
		return nil, err
	}
	i := &Injector{host: host, version: v, adapter: adapter, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Adapter returns the selected adapter.
func (i *Injector) Adapter() CodeLoadAdapter { return i.adapter }

// Version returns the host version the adapter was selected for.
func (i *Injector) Version() types.HostVersion { return i.version }

// Inject splices artifacts into the host search path, before the existing
// entries when prepend is set and after them otherwise. An empty list is a
// no-op. Failures are returned as *InjectionError.
func (i *Injector) Inject(artifacts []string, workDir string, prepend bool) error {
	if len(artifacts) == 0 {
		return nil
	}

	i.mu.Lock()
	start := time.Now()
	err := i.adapter.Install(i.host, artifacts, workDir, prepend)
	elapsed := time.Since(start)
	i.mu.Unlock()

	if err != nil {
		var ie *InjectionError
		if !errors.As(err, &ie) {
			err = &InjectionError{Adapter: i.adapter.Name(), Version: i.version, Err: err}
		}
	}
	if i.observer != nil {
		i.observer(i.adapter.Name(), len(artifacts), elapsed, err)
	}
	if err != nil {
		return err
	}

	i.logger.Debug("injected code artifacts",
		"adapter", i.adapter.Name(), "count", len(artifacts), "prepend", prepend, "elapsed", elapsed)
	return nil
}
