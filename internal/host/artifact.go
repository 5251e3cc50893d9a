// SPDX-License-Identifier: MPL-2.0

package host

import (
	"fmt"

	"github.com/klauspost/compress/zip"
)

// Artifact is an indexed code artifact.
type Artifact struct {
	path    string
	workDir string
	entries map[string]struct{}
}

// IndexArtifact opens the ZIP container at path and records its entry names.
func IndexArtifact(path, workDir string) (*Artifact, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("index artifact %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	a := &Artifact{path: path, workDir: workDir, entries: make(map[string]struct{}, len(zr.File))}
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			a.entries[f.Name] = struct{}{}
		}
	}
	return a, nil
}

// Path implements loader.Code.
func (a *Artifact) Path() string { return a.path }

// WorkDir returns the directory the artifact was loaded for.
func (a *Artifact) WorkDir() string { return a.workDir }

// Has reports whether the artifact defines symbol.
func (a *Artifact) Has(symbol string) bool {
	_, ok := a.entries[symbol]
	return ok
}

// Len returns the number of symbols the artifact defines.
func (a *Artifact) Len() int { return len(a.entries) }
