// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"

	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
)

// ErrInvalidOutputFormat is the sentinel error wrapped by InvalidOutputFormatError.
var ErrInvalidOutputFormat = errors.New("invalid output format")

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputTOML OutputFormat = "toml"
)

type (
	// OutputFormat selects how listings are written.
	OutputFormat string

	// InvalidOutputFormatError is returned for an unknown OutputFormat.
	InvalidOutputFormatError struct {
		Value OutputFormat
	}

	// moduleView is the machine-readable form of a module.
	moduleView struct {
		ID        uint64 `json:"id" toml:"id"`
		Location  string `json:"location" toml:"location"`
		State     string `json:"state" toml:"state"`
		Revision  uint64 `json:"revision" toml:"revision"`
		Revisions uint64 `json:"revisions" toml:"revisions"`
		Source    string `json:"source,omitempty" toml:"source,omitempty"`
		Payload   string `json:"payload,omitempty" toml:"payload,omitempty"`
		Dir       string `json:"dir" toml:"dir"`
	}

	moduleList struct {
		Modules []moduleView `json:"modules" toml:"modules"`
	}

	patchView struct {
		ID      string `json:"id" toml:"id"`
		Name    string `json:"name" toml:"name"`
		Version int    `json:"version" toml:"version"`
		Payload string `json:"payload" toml:"payload"`
	}

	patchList struct {
		Patches []patchView `json:"patches" toml:"patches"`
	}
)

// Validate returns an error for formats other than text, json and toml.
func (f OutputFormat) Validate() error {
	switch f {
	case OutputText, OutputJSON, OutputTOML:
		return nil
	default:
		return &InvalidOutputFormatError{Value: f}
	}
}

func (e *InvalidOutputFormatError) Error() string {
	return fmt.Sprintf("invalid output format %q (expected text, json or toml)", e.Value)
}

func (e *InvalidOutputFormatError) Unwrap() error { return ErrInvalidOutputFormat }

func newModuleView(m *bundle.Module) moduleView {
	v := moduleView{
		ID:       uint64(m.ID()),
		Location: string(m.Location()),
		State:    m.State().String(),
		Revision: uint64(m.RevisionNumber()),
		Dir:      m.Dir(),
	}
	if a := m.Archive(); a != nil {
		v.Revisions = uint64(a.Count())
	}
	if rev := m.Revision(); rev != nil {
		v.Source = rev.Tag().String()
		v.Payload = rev.PayloadPath()
	}
	return v
}

// writeStructured encodes v as json or toml.
func writeStructured(w io.Writer, format OutputFormat, v any) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputTOML:
		return toml.NewEncoder(w).Encode(v)
	default:
		return &InvalidOutputFormatError{Value: format}
	}
}
