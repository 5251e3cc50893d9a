// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

type (
	// CodeLoadAdapter extends a host search path with code artifacts.
	// Implementations build the combined search path aside and publish it
	// with a single setter call, so a failure leaves the host untouched.
	CodeLoadAdapter interface {
		Name() string
		Install(host HostLoader, artifacts []string, workDir string, prepend bool) error
	}

	// FieldArrays serves legacy hosts whose search path is a set of
	// parallel fields.
	FieldArrays struct{}

	// BatchStrict serves hosts with a batch element builder that fails as
	// a whole.
	BatchStrict struct{}

	// BatchSuppressed serves hosts whose batch element builder reports
	// per-artifact failures separately. Any failure aborts the install and
	// the first one is returned.
	BatchSuppressed struct{}

	// SingleElement serves hosts that load artifacts one by one and expect
	// the caller to wrap each in an element.
	SingleElement struct{}
)

// Name implements CodeLoadAdapter.
func (FieldArrays) Name() string { return "field-arrays" }

// Install implements CodeLoadAdapter.
func (FieldArrays) Install(host HostLoader, artifacts []string, workDir string, prepend bool) error {
	h, ok := host.(FieldArrayHost)
	if !ok {
		return hostMismatch("parallel search path fields")
	}

	cur := h.Fields()
	n := len(cur.Paths)
	if len(cur.Files) != n || len(cur.Archives) != n || len(cur.Code) != n {
		return fmt.Errorf("%w: parallel fields out of step (%d paths, %d files, %d archives, %d code)",
			ErrHostMismatch, n, len(cur.Files), len(cur.Archives), len(cur.Code))
	}

	paths := make([]string, 0, len(artifacts))
	archives := make([]Code, 0, len(artifacts))
	code := make([]Code, 0, len(artifacts))
	for _, a := range artifacts {
		abs, err := filepath.Abs(a)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", a, err)
		}
		arch, err := h.OpenArchive(abs)
		if err != nil {
			return fmt.Errorf("open archive %s: %w", abs, err)
		}
		c, err := h.LoadCode(abs, workDir)
		if err != nil {
			return fmt.Errorf("load code %s: %w", abs, err)
		}
		paths = append(paths, abs)
		archives = append(archives, arch)
		code = append(code, c)
	}

	next := ParallelFields{
		Paths:    combine(cur.Paths, paths, prepend),
		Files:    combine(cur.Files, paths, prepend),
		Archives: combine(cur.Archives, archives, prepend),
		Code:     combine(cur.Code, code, prepend),
	}
	next.PathList = strings.Join(next.Paths, string(filepath.ListSeparator))
	return h.SetFields(next)
}

// Name implements CodeLoadAdapter.
func (BatchStrict) Name() string { return "batch-strict" }

// Install implements CodeLoadAdapter.
func (BatchStrict) Install(host HostLoader, artifacts []string, workDir string, prepend bool) error {
	h, ok := host.(BatchElementHost)
	if !ok {
		return hostMismatch("batch element builder")
	}
	added, err := h.MakeElements(artifacts, workDir)
	if err != nil {
		return fmt.Errorf("make elements: %w", err)
	}
	return h.SetElements(combine(h.Elements(), added, prepend))
}

// Name implements CodeLoadAdapter.
func (BatchSuppressed) Name() string { return "batch-suppressed" }

// Install implements CodeLoadAdapter.
func (BatchSuppressed) Install(host HostLoader, artifacts []string, workDir string, prepend bool) error {
	h, ok := host.(SuppressingElementHost)
	if !ok {
		return hostMismatch("suppressing element builder")
	}
	added, suppressed := h.MakeElementsSuppressed(artifacts, workDir)
	if len(suppressed) > 0 {
		for _, err := range suppressed {
			slog.Warn("artifact failed to load", "adapter", "batch-suppressed", "error", err)
		}
		return fmt.Errorf("make elements (%d failed): %w", len(suppressed), suppressed[0])
	}
	return h.SetElements(combine(h.Elements(), added, prepend))
}

// Name implements CodeLoadAdapter.
func (SingleElement) Name() string { return "single-element" }

// Install implements CodeLoadAdapter.
func (SingleElement) Install(host HostLoader, artifacts []string, workDir string, prepend bool) error {
	h, ok := host.(SingleElementHost)
	if !ok {
		return hostMismatch("single element loader")
	}
	added := make([]Element, 0, len(artifacts))
	for _, a := range artifacts {
		c, err := h.LoadCode(a, workDir)
		if err != nil {
			return fmt.Errorf("load code %s: %w", a, err)
		}
		el, err := h.NewElement(a, c)
		if err != nil {
			return fmt.Errorf("build element for %s: %w", a, err)
		}
		added = append(added, el)
	}
	return h.SetElements(combine(h.Elements(), added, prepend))
}
