// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// ModulesDir is the inbox subdirectory for module payloads. A drop named
	// <location>.zip installs or updates the module at that location.
	ModulesDir = "modules"
	// PatchesDir is the inbox subdirectory for hot patches. A drop named
	// <name>.zip is installed under patch name <name>.
	PatchesDir = "patches"
	// FailedSuffix is appended to drops whose handler returned an error.
	FailedSuffix = ".failed"
)

// InboxPatterns selects the files an inbox Watcher reports.
var InboxPatterns = []string{
	ModulesDir + "/*.{zip,jar,apk}",
	PatchesDir + "/*.{zip,jar,apk}",
}

var payloadExts = map[string]bool{".zip": true, ".jar": true, ".apk": true}

type (
	// DropKind tells what a dropped file installs.
	DropKind int

	// Drop is a file placed in the inbox.
	Drop struct {
		Kind DropKind
		// Name is the module location or patch name derived from the file
		// name.
		Name string
		// Path is the absolute path of the dropped file.
		Path string
	}

	// DropHandler applies one drop.
	DropHandler func(ctx context.Context, d Drop) error

	// Inbox turns watcher batches into drops. Applied drops are removed;
	// failed drops are renamed with FailedSuffix so they are not retried.
	Inbox struct {
		Dir      string
		OnModule DropHandler
		OnPatch  DropHandler
		Logger   *slog.Logger
	}
)

const (
	DropModule DropKind = iota + 1
	DropPatch
)

func (k DropKind) String() string {
	switch k {
	case DropModule:
		return "module"
	case DropPatch:
		return "patch"
	default:
		return fmt.Sprintf("DropKind(%d)", int(k))
	}
}

// ParseDrop classifies rel, a slash-separated path relative to the inbox
// root. It reports false for anything outside the two drop directories or
// without a payload extension.
func ParseDrop(rel string) (DropKind, string, bool) {
	dir, file := path.Split(filepath.ToSlash(rel))
	ext := strings.ToLower(path.Ext(file))
	if !payloadExts[ext] {
		return 0, "", false
	}
	name := strings.TrimSuffix(file, path.Ext(file))
	if name == "" || strings.HasPrefix(name, ".") {
		return 0, "", false
	}
	switch strings.TrimSuffix(dir, "/") {
	case ModulesDir:
		return DropModule, name, true
	case PatchesDir:
		return DropPatch, name, true
	default:
		return 0, "", false
	}
}

// EnsureLayout creates the inbox root and its drop directories.
func (in *Inbox) EnsureLayout() error {
	for _, sub := range []string{ModulesDir, PatchesDir} {
		if err := os.MkdirAll(filepath.Join(in.Dir, sub), 0o755); err != nil {
			return fmt.Errorf("create inbox directory: %w", err)
		}
	}
	return nil
}

// Pending lists the drops already sitting in the inbox, modules first.
func (in *Inbox) Pending() ([]string, error) {
	var rels []string
	for _, sub := range []string{ModulesDir, PatchesDir} {
		entries, err := os.ReadDir(filepath.Join(in.Dir, sub))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read inbox: %w", err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() {
				rels = append(rels, sub+"/"+e.Name())
			}
		}
	}
	return rels, nil
}

// Process applies every drop in changed, in order. Paths that no longer
// exist are skipped since removals are reported like any other event. The
// returned error joins the handler failures.
func (in *Inbox) Process(ctx context.Context, changed []string) error {
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, rel := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind, name, ok := ParseDrop(rel)
		if !ok {
			continue
		}
		abs := filepath.Join(in.Dir, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		handler := in.OnModule
		if kind == DropPatch {
			handler = in.OnPatch
		}
		if handler == nil {
			logger.Warn("no handler for drop", "kind", kind, "path", rel)
			continue
		}

		d := Drop{Kind: kind, Name: name, Path: abs}
		if err := handler(ctx, d); err != nil {
			logger.Error("drop failed", "kind", kind, "name", name, "error", err)
			errs = append(errs, fmt.Errorf("%s %s: %w", kind, name, err))
			if renameErr := os.Rename(abs, abs+FailedSuffix); renameErr != nil {
				logger.Warn("failed to set drop aside", "path", abs, "error", renameErr)
			}
			continue
		}
		logger.Info("drop applied", "kind", kind, "name", name)
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove applied drop", "path", abs, "error", err)
		}
	}
	return errors.Join(errs...)
}
