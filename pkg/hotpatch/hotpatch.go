// SPDX-License-Identifier: MPL-2.0

package hotpatch

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// PayloadFileName is the payload file inside a patch directory.
const PayloadFileName = "payload.bin"

// ErrNilPayload is returned when Install is called without a payload.
var ErrNilPayload = errors.New("nil patch payload")

type (
	// Injector splices code artifacts into the host search path.
	Injector interface {
		Inject(artifacts []string, workDir string, prepend bool) error
	}

	// Entry is one stored patch.
	Entry struct {
		// ID is the directory name, "<base>_<version>".
		ID          string
		BaseName    string
		Version     int
		Dir         string
		PayloadPath string
	}

	// Option configures a Store.
	Option func(*Store)

	// Store is the hot patch registry. All methods are serialized.
	Store struct {
		mu        sync.Mutex
		root      string
		injector  Injector
		logger    *slog.Logger
		onInstall func(error)
		onChange  func(n int)

		loaded   bool
		entries  []Entry // version descending
		injected map[string]bool
	}
)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithInstallObserver registers fn to be called with the outcome of every
// Install.
func WithInstallObserver(fn func(error)) Option {
	return func(s *Store) { s.onInstall = fn }
}

// WithSizeObserver registers fn to be called with the entry count whenever
// it changes.
func WithSizeObserver(fn func(n int)) Option {
	return func(s *Store) { s.onChange = fn }
}

// New returns a Store rooted at root.
func New(root string, injector Injector, opts ...Option) *Store {
	s := &Store{
		root:     root,
		injector: injector,
		logger:   slog.Default(),
		injected: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the patch root directory.
func (s *Store) Root() string { return s.root }

// ParseEntryName splits "<base>_<version>" into its parts.
func ParseEntryName(name string) (base string, version int, ok bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(name[i+1:])
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return name[:i], v, true
}

func (s *Store) newEntry(base string, version int) Entry {
	id := base + "_" + strconv.Itoa(version)
	dir := filepath.Join(s.root, id)
	return Entry{
		ID:          id,
		BaseName:    base,
		Version:     version,
		Dir:         dir,
		PayloadPath: filepath.Join(dir, PayloadFileName),
	}
}

// scan rebuilds the in-memory index from disk. Must be called with mu held.
func (s *Store) scan() error {
	s.entries = nil
	s.loaded = true

	dirents, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan patch root %s: %w", s.root, err)
	}

	for _, d := range dirents {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		base, version, ok := ParseEntryName(d.Name())
		if !ok {
			s.logger.Warn("skipping patch directory without a version suffix", "dir", d.Name())
			continue
		}
		s.entries = append(s.entries, s.newEntry(base, version))
	}
	s.sortEntries()
	return nil
}

func (s *Store) sortEntries() {
	slices.SortFunc(s.entries, func(a, b Entry) int { return b.Version - a.Version })
	if s.onChange != nil {
		s.onChange(len(s.entries))
	}
}

func (s *Store) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	return s.scan()
}

// Install stores payload as the newest patch for name's base name and
// splices it in front of the search path. It reports false when the patch
// could not be applied; a stored but unapplied patch stays on disk.
func (s *Store) Install(name types.PatchName, payload io.Reader) (ok bool, err error) {
	defer func() {
		if s.onInstall != nil {
			s.onInstall(err)
		}
	}()

	if err := name.Validate(); err != nil {
		return false, err
	}
	if payload == nil {
		return false, ErrNilPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return false, err
	}

	// Versions never repeat, even when the newest entry is the one replaced.
	version := 1
	if len(s.entries) > 0 {
		version = s.entries[0].Version + 1
	}
	base := name.BaseName()
	s.uninstall(base)

	e := s.newEntry(base, version)
	if err := s.write(e, payload); err != nil {
		return false, err
	}
	s.entries = append(s.entries, e)
	s.sortEntries()
	s.logger.Info("stored hot patch", "id", e.ID, "name", string(name))

	if err := storage.ValidatePayload(e.PayloadPath); err != nil {
		return false, err
	}
	if err := s.injector.Inject([]string{e.PayloadPath}, e.Dir, true); err != nil {
		return false, fmt.Errorf("apply hot patch %s: %w", e.ID, err)
	}
	s.injected[e.ID] = true
	return true, nil
}

// uninstall removes every entry whose base name matches base, ignoring
// case. Must be called with mu held.
func (s *Store) uninstall(base string) {
	s.entries = slices.DeleteFunc(s.entries, func(e Entry) bool {
		if !strings.EqualFold(e.BaseName, base) {
			return false
		}
		if err := os.RemoveAll(e.Dir); err != nil {
			s.logger.Warn("failed to remove replaced hot patch", "id", e.ID, "error", err)
		}
		delete(s.injected, e.ID)
		s.logger.Info("replaced hot patch", "id", e.ID)
		return true
	})
}

// write stores payload for e through a staging directory.
func (s *Store) write(e Entry, payload io.Reader) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create patch root: %w", err)
	}
	staging, err := os.MkdirTemp(s.root, "."+e.ID+"-")
	if err != nil {
		return fmt.Errorf("stage hot patch %s: %w", e.ID, err)
	}
	cleanup := func() { _ = os.RemoveAll(staging) }

	f, err := os.Create(filepath.Join(staging, PayloadFileName))
	if err != nil {
		cleanup()
		return fmt.Errorf("stage hot patch %s: %w", e.ID, err)
	}
	_, err = io.Copy(f, payload)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(staging, 0o755)
	}
	if err == nil {
		err = os.RemoveAll(e.Dir)
	}
	if err == nil {
		err = os.Rename(staging, e.Dir)
	}
	if err != nil {
		cleanup()
		return fmt.Errorf("write hot patch %s: %w", e.ID, err)
	}
	return nil
}

// Run rescans the patch root and applies every valid patch not applied yet
// in this process, newest first on the search path. It returns the number
// of patches applied.
func (s *Store) Run() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scan(); err != nil {
		s.logger.Error("failed to scan hot patches", "error", err)
		return 0
	}

	var pending []Entry
	for _, e := range s.entries {
		if s.injected[e.ID] {
			continue
		}
		if err := storage.ValidatePayload(e.PayloadPath); err != nil {
			s.logger.Warn("skipping invalid hot patch", "id", e.ID, "error", err)
			continue
		}
		pending = append(pending, e)
	}
	if len(pending) == 0 {
		return 0
	}

	artifacts := make([]string, len(pending))
	for i, e := range pending {
		artifacts[i] = e.PayloadPath
	}
	err := s.injector.Inject(artifacts, s.root, true)
	if err == nil {
		for _, e := range pending {
			s.injected[e.ID] = true
		}
		return len(pending)
	}
	s.logger.Warn("batch hot patch apply failed, applying one by one", "error", err)

	applied := 0
	for _, e := range slices.Backward(pending) {
		if err := s.injector.Inject([]string{e.PayloadPath}, e.Dir, true); err != nil {
			s.logger.Error("failed to apply hot patch", "id", e.ID, "error", err)
			continue
		}
		s.injected[e.ID] = true
		applied++
	}
	return applied
}

// Purge removes the patch root and forgets every entry. Patches already on
// the search path stay there until the process restarts.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("purge hot patches: %w", err)
	}
	s.entries = nil
	s.loaded = true
	clear(s.injected)
	if s.onChange != nil {
		s.onChange(0)
	}
	return nil
}

// Entries returns the stored patches, newest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		s.logger.Warn("failed to load hot patches", "error", err)
	}
	return slices.Clone(s.entries)
}
