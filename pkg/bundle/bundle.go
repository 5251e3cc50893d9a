// SPDX-License-Identifier: MPL-2.0

package bundle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// Module states.
const (
	Unresolved State = iota
	Installed
	Prepared
	Purged
)

// ErrPurged is returned when preparing a module with no revision left.
var ErrPurged = errors.New("module has no revision left")

type (
	// State is the lifecycle state of a Module.
	State int

	// Injector splices code artifacts into the host search path.
	Injector interface {
		Inject(artifacts []string, workDir string, prepend bool) error
	}

	// Module is an installed unit of code and resources.
	Module struct {
		mu       sync.Mutex
		id       types.ModuleID
		location types.Location
		dir      string
		archive  *storage.Archive
		state    State
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Installed:
		return "installed"
	case Prepared:
		return "prepared"
	case Purged:
		return "purged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Create stores payload as revision 1 of a new module in dir and writes the
// module record. On failure dir is removed.
func Create(dir string, location types.Location, id types.ModuleID, payload io.Reader) (*Module, error) {
	if err := validateIdentity(location, id); err != nil {
		return nil, err
	}
	archive, err := storage.CreateArchive(dir, payload)
	if err != nil {
		return nil, err
	}
	return finishCreate(dir, location, id, archive)
}

// CreateReference is Create for a payload that stays at path outside the
// storage root.
func CreateReference(dir string, location types.Location, id types.ModuleID, path string) (*Module, error) {
	if err := validateIdentity(location, id); err != nil {
		return nil, err
	}
	archive, err := storage.CreateArchiveFromReference(dir, path)
	if err != nil {
		return nil, err
	}
	return finishCreate(dir, location, id, archive)
}

func validateIdentity(location types.Location, id types.ModuleID) error {
	if err := location.Validate(); err != nil {
		return err
	}
	return id.Validate()
}

func finishCreate(dir string, location types.Location, id types.ModuleID, archive *storage.Archive) (*Module, error) {
	if err := storage.WriteModuleRecord(filepath.Join(dir, storage.MetaFileName), id, location); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	m := &Module{id: id, location: location, dir: dir, archive: archive}
	m.state = m.revisionState()
	return m, nil
}

// Open reconstructs a module from its directory.
func Open(dir string) (*Module, error) {
	id, location, err := storage.ReadModuleRecord(filepath.Join(dir, storage.MetaFileName))
	if err != nil {
		return nil, err
	}
	archive, err := storage.OpenArchive(dir)
	if err != nil {
		return nil, err
	}
	m := &Module{id: id, location: location, dir: dir, archive: archive}
	m.state = m.revisionState()
	return m, nil
}

// revisionState derives the state from the current revision. Must be
// called with mu held or before the module is shared.
func (m *Module) revisionState() State {
	switch {
	case m.archive.Count() == 0:
		return Purged
	case m.archive.Current().IsInstalled():
		return Installed
	default:
		return Unresolved
	}
}

// ID returns the module id.
func (m *Module) ID() types.ModuleID { return m.id }

// Location returns the module location key.
func (m *Module) Location() types.Location { return m.location }

// Dir returns the module directory.
func (m *Module) Dir() string { return m.dir }

// String returns "Bundle [<id>]: <location>".
func (m *Module) String() string {
	return fmt.Sprintf("Bundle [%d]: %s", m.id, m.location)
}

// State returns the lifecycle state.
func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RevisionNumber returns the archive's revision counter.
func (m *Module) RevisionNumber() types.RevisionNumber {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archive.Count()
}

// PayloadPath returns the payload file of the current revision, or "" for
// a purged module.
func (m *Module) PayloadPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	rev := m.archive.Current()
	if rev == nil {
		return ""
	}
	return rev.PayloadPath()
}

// Revision returns the current revision.
func (m *Module) Revision() *storage.Revision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archive.Current()
}

// Archive returns the module's archive. Callers must not mutate it; use
// Update and Purge instead.
func (m *Module) Archive() *storage.Archive { return m.archive }

// Update stores payload as a new revision.
func (m *Module) Update(payload io.Reader) (*storage.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev, err := m.archive.NewRevision(payload)
	if err != nil {
		return nil, err
	}
	m.state = m.revisionState()
	return rev, nil
}

// UpdateReference adds a revision that reads its payload from path.
func (m *Module) UpdateReference(path string) (*storage.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rev, err := m.archive.NewRevisionFromReference(path)
	if err != nil {
		return nil, err
	}
	m.state = m.revisionState()
	return rev, nil
}

// Purge drops the current revision and rolls back to the previous one.
func (m *Module) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.archive.Purge()
	m.state = m.revisionState()
	return err
}

// Prepare splices the current revision payload into the host search path
// behind the code already there. It is a no-op once the module has been
// prepared in this process.
func (m *Module) Prepare(inj Injector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.state == Prepared:
		return nil
	case m.archive.Count() == 0:
		return ErrPurged
	}

	rev := m.archive.Current()
	if err := storage.ValidatePayload(rev.PayloadPath()); err != nil {
		m.state = Unresolved
		return err
	}
	artifacts := []string{rev.PayloadPath()}
	if err := inj.Inject(artifacts, rev.Dir(), false); err != nil {
		m.state = Installed
		return err
	}
	m.state = Prepared

	if err := rev.MarkPrepared(artifacts); err != nil {
		slog.Warn("failed to write prepared marker", "module", m.String(), "error", err)
	}
	return nil
}

// OpenAsset streams assets/<name> out of the current revision payload.
func (m *Module) OpenAsset(name string) (io.ReadCloser, error) {
	return m.Revision().OpenAsset(name)
}
