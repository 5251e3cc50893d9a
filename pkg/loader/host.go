// SPDX-License-Identifier: MPL-2.0

package loader

import "github.com/CtripMobile/DynamicAPK/pkg/types"

type (
	// Code is a code artifact the host has loaded and can resolve symbols from.
	Code interface {
		Path() string
	}

	// Element is one entry of an element-based search path.
	Element struct {
		Artifact string
		Code     Code
	}

	// ParallelFields is the search path of a legacy host, kept as index-aligned
	// slices: entry i of each slice describes the same artifact.
	ParallelFields struct {
		// PathList joins Paths with the host list separator.
		PathList string
		Paths    []string
		Files    []string
		Archives []Code
		Code     []Code
	}

	// HostLoader is the minimal view of a host runtime.
	HostLoader interface {
		Generation() types.HostVersion
	}

	// FieldArrayHost is a legacy host exposing its search path as parallel
	// fields that have to be extended together.
	FieldArrayHost interface {
		HostLoader
		Fields() ParallelFields
		SetFields(ParallelFields) error
		OpenArchive(path string) (Code, error)
		LoadCode(path, workDir string) (Code, error)
	}

	// ElementListHost exposes its search path as a list of elements.
	ElementListHost interface {
		HostLoader
		Elements() []Element
		SetElements([]Element) error
	}

	// BatchElementHost builds elements for a batch of artifacts, failing as a
	// whole.
	BatchElementHost interface {
		ElementListHost
		MakeElements(artifacts []string, workDir string) ([]Element, error)
	}

	// SuppressingElementHost builds elements for a batch of artifacts and
	// reports per-artifact failures on the side.
	SuppressingElementHost interface {
		ElementListHost
		MakeElementsSuppressed(artifacts []string, workDir string) ([]Element, []error)
	}

	// SingleElementHost loads one artifact at a time and leaves element
	// construction to the caller.
	SingleElementHost interface {
		ElementListHost
		LoadCode(path, workDir string) (Code, error)
		NewElement(artifact string, code Code) (Element, error)
	}
)

// combine returns a new slice holding added before or after existing.
// Neither input is modified.
func combine[T any](existing, added []T, prepend bool) []T {
	out := make([]T, 0, len(existing)+len(added))
	if prepend {
		out = append(out, added...)
		return append(out, existing...)
	}
	out = append(out, existing...)
	return append(out, added...)
}
