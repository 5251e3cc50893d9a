// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"fmt"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

type (
	// Range maps every host version at or above MinVersion to Adapter, up to
	// the next higher range.
	Range struct {
		MinVersion types.HostVersion
		Adapter    CodeLoadAdapter
	}

	// Table is a set of version ranges. Order does not matter.
	Table []Range
)

// DefaultTable returns the ranges for the known host generations.
func DefaultTable() Table {
	return Table{
		{MinVersion: "v4", Adapter: FieldArrays{}},
		{MinVersion: "v14", Adapter: BatchStrict{}},
		{MinVersion: "v19", Adapter: BatchSuppressed{}},
		{MinVersion: "v23", Adapter: SingleElement{}},
	}
}

// Validate returns an error if a range has an unparsable version or no
// adapter.
func (t Table) Validate() error {
	for i, r := range t {
		if err := r.MinVersion.Validate(); err != nil {
			return fmt.Errorf("range %d: %w", i, err)
		}
		if r.Adapter == nil {
			return fmt.Errorf("range %d (%s): nil adapter", i, r.MinVersion)
		}
	}
	return nil
}

// Lookup returns the adapter of the highest range whose MinVersion is at
// or below v.
func (t Table) Lookup(v types.HostVersion) (CodeLoadAdapter, error) {
	if err := v.Validate(); err != nil {
		return nil, &InjectionError{Version: v, Err: fmt.Errorf("%w: %w", ErrNoAdapter, err)}
	}

	var best *Range
	for i := range t {
		r := &t[i]
		if r.Adapter == nil || r.MinVersion.Validate() != nil || r.MinVersion.Compare(v) > 0 {
			continue
		}
		if best == nil || r.MinVersion.Compare(best.MinVersion) > 0 {
			best = r
		}
	}
	if best == nil {
		return nil, &InjectionError{Version: v, Err: ErrNoAdapter}
	}
	return best.Adapter, nil
}
