// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"slices"
	"time"

	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
)

type (
	// Listener is notified after a prepare pass.
	Listener func()

	listener struct {
		id uint64
		fn Listener
	}
)

// AddSyncListener registers fn to run on the PrepareAll goroutine before the
// resource view is rebuilt. The returned function removes it.
func (r *Registry) AddSyncListener(fn Listener) (remove func()) {
	return r.addListener(&r.syncListeners, fn)
}

// AddDelayedListener registers fn to run on a separate goroutine after each
// PrepareAll. It has no ordering guarantee relative to sync listeners. The
// returned function removes it.
func (r *Registry) AddDelayedListener(fn Listener) (remove func()) {
	return r.addListener(&r.delayedListeners, fn)
}

func (r *Registry) addListener(set *[]listener, fn Listener) func() {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()

	r.listenerID++
	id := r.listenerID
	*set = append(*set, listener{id: id, fn: fn})

	return func() {
		r.listenerMu.Lock()
		defer r.listenerMu.Unlock()
		*set = slices.DeleteFunc(*set, func(l listener) bool { return l.id == id })
	}
}

func (r *Registry) snapshot(set *[]listener) []listener {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	return slices.Clone(*set)
}

// PrepareAll prepares every registered module, notifies sync listeners,
// rebuilds the resource view and dispatches delayed listeners. A module
// that fails to prepare is logged and left Installed; it is retried on the
// next call.
func (r *Registry) PrepareAll(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		r.logger.Warn("prepare refused", "error", err)
		return
	}
	if err := r.running(); err != nil {
		r.logger.Warn("prepare refused", "error", err)
		return
	}

	mods := r.List()
	prepared := 0
	for _, m := range mods {
		if r.prepare(m) {
			prepared++
		}
	}
	r.logger.Info("prepared modules", "prepared", prepared, "total", len(mods))

	for _, l := range r.snapshot(&r.syncListeners) {
		l.fn()
		r.metrics.ObserveListener("sync")
	}

	r.rebuildResources(mods)

	r.dispatchDelayed(r.snapshot(&r.delayedListeners))
}

// dispatchDelayed runs delayed on a new goroutine unless the registry has
// stopped.
func (r *Registry) dispatchDelayed(delayed []listener) {
	if len(delayed) == 0 {
		return
	}
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	if err := r.running(); err != nil {
		r.logger.Debug("delayed listeners skipped", "error", err)
		return
	}
	r.delayedWG.Add(1)
	go func() {
		defer r.delayedWG.Done()
		for _, l := range delayed {
			l.fn()
			r.metrics.ObserveListener("delayed")
		}
	}()
}

func (r *Registry) prepare(m *bundle.Module) bool {
	if r.injector == nil {
		return false
	}
	start := time.Now()
	err := m.Prepare(r.injector)
	r.metrics.ObservePrepare(time.Since(start))
	r.metrics.ObserveOperation("prepare", err)
	if err != nil {
		r.logger.Warn("failed to prepare module", "module", m.String(), "state", m.State(), "error", err)
		return false
	}
	return true
}

func (r *Registry) rebuildResources(mods []*bundle.Module) {
	var paths []string
	for _, m := range mods {
		switch m.State() {
		case bundle.Installed, bundle.Prepared:
			paths = append(paths, m.PayloadPath())
		}
	}
	r.resources.Rebuild(r.hostRes, paths)
}

// WaitDelayed blocks until every dispatched delayed listener has returned.
// It must not race with PrepareAll on another goroutine; Shutdown may.
func (r *Registry) WaitDelayed() { r.delayedWG.Wait() }
