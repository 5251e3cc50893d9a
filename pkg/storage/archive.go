// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// Archive owns the revision chain of one module. Only the current revision
// is materialized; count is the number the next revision builds on.
//
// An Archive is not safe for concurrent use. Callers serialize access per
// module.
type Archive struct {
	dir     string
	current *Revision
	count   types.RevisionNumber
}

// OpenArchive scans dir for version_<n> directories and opens the highest.
func OpenArchive(dir string) (*Archive, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newStorageError("open archive", dir, err)
	}

	var highest types.RevisionNumber
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := ParseRevisionDirName(e.Name()); ok && n > highest {
			highest = n
		}
	}
	if highest == 0 {
		return nil, newStorageError("open archive", dir, ErrNoRevisions)
	}

	rev, err := openRevision(highest, filepath.Join(dir, RevisionDirName(highest)))
	if err != nil {
		return nil, err
	}
	return &Archive{dir: dir, current: rev, count: highest}, nil
}

// CreateArchive creates dir with revision 1 holding a copy of payload.
// On failure the partially written dir is removed.
func CreateArchive(dir string, payload io.Reader) (*Archive, error) {
	return createArchive(dir, EmbeddedTag(), payload)
}

// CreateArchiveFromReference creates dir with revision 1 pointing at the
// payload file path, which is not copied.
func CreateArchiveFromReference(dir, path string) (*Archive, error) {
	if path == "" {
		return nil, newStorageError("create archive", dir, errors.New("empty reference path"))
	}
	return createArchive(dir, ReferencedTag(path), nil)
}

func createArchive(dir string, tag SourceTag, payload io.Reader) (a *Archive, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, newStorageError("create archive", dir, err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	a = &Archive{dir: dir}
	if _, err = a.addRevision(tag, payload); err != nil {
		return nil, err
	}
	return a, nil
}

// Dir returns the module directory the archive lives in.
func (a *Archive) Dir() string { return a.dir }

// Current returns the current revision. After purging down to the floor it
// is the last revision that existed, whose directory is gone.
func (a *Archive) Current() *Revision { return a.current }

// Count returns the revision counter.
func (a *Archive) Count() types.RevisionNumber { return a.count }

// NewRevision stores payload as revision count+1 and makes it current.
// Earlier revisions stay on disk. On failure the archive is unchanged.
func (a *Archive) NewRevision(payload io.Reader) (*Revision, error) {
	return a.addRevision(EmbeddedTag(), payload)
}

// NewRevisionFromReference adds a revision pointing at an external payload.
func (a *Archive) NewRevisionFromReference(path string) (*Revision, error) {
	if path == "" {
		return nil, newStorageError("new revision", a.dir, errors.New("empty reference path"))
	}
	return a.addRevision(ReferencedTag(path), nil)
}

// addRevision writes the revision into a staging directory and renames it
// into place before switching current.
func (a *Archive) addRevision(tag SourceTag, payload io.Reader) (*Revision, error) {
	n := a.count + 1
	final := filepath.Join(a.dir, RevisionDirName(n))

	staging, err := os.MkdirTemp(a.dir, "."+RevisionDirName(n)+"-")
	if err != nil {
		return nil, newStorageError("new revision", final, err)
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		_ = os.RemoveAll(staging)
		return nil, newStorageError("new revision", final, err)
	}
	if _, err := writeRevision(n, staging, tag, payload); err != nil {
		_ = os.RemoveAll(staging)
		return nil, err
	}

	// A leftover directory can only come from an interrupted purge.
	if err := os.RemoveAll(final); err != nil {
		_ = os.RemoveAll(staging)
		return nil, newStorageError("new revision", final, err)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.RemoveAll(staging)
		return nil, newStorageError("new revision", final, err)
	}
	syncDir(a.dir)

	rev := newRevision(n, final, tag)
	a.current = rev
	a.count = n
	return rev, nil
}

// Purge deletes the current revision directory and rolls back one step.
// At the floor the counter stays at zero and current keeps the stale
// revision; purging again is a no-op.
func (a *Archive) Purge() error {
	if a.count == 0 {
		return nil
	}
	if err := os.RemoveAll(a.current.dir); err != nil {
		return newStorageError("purge revision", a.current.dir, err)
	}
	a.count = a.count.Prev()
	if a.count == 0 {
		return nil
	}

	prevDir := filepath.Join(a.dir, RevisionDirName(a.count))
	if _, err := os.Stat(prevDir); err != nil {
		return nil
	}
	prev, err := openRevision(a.count, prevDir)
	if err != nil {
		return fmt.Errorf("roll back to revision %d: %w", a.count, err)
	}
	a.current = prev
	return nil
}
