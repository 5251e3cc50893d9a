// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"bytes"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Entries maps ZIP entry names to their contents.
type Entries map[string]string

// ZipBytes returns a ZIP container holding entries, written in sorted name
// order so equal inputs give equal bytes.
func ZipBytes(t testing.TB, entries Entries) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range slices.Sorted(maps.Keys(entries)) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(entries[name])); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip: %v", err)
	}
	return buf.Bytes()
}

// ZipReader returns a reader over ZipBytes(entries).
func ZipReader(t testing.TB, entries Entries) *bytes.Reader {
	t.Helper()
	return bytes.NewReader(ZipBytes(t, entries))
}

// WriteZip writes a ZIP container to dir/name and returns its path.
func WriteZip(t testing.TB, dir, name string, entries Entries) string {
	t.Helper()
	path := filepath.Join(dir, name)
	MustWriteFile(t, path, ZipBytes(t, entries))
	return path
}

// CodePayload returns a payload defining each symbol as an entry whose
// content is tag, so tests can tell which artifact resolved a symbol.
func CodePayload(t testing.TB, tag string, symbols ...string) []byte {
	t.Helper()
	entries := make(Entries, len(symbols))
	for _, s := range symbols {
		entries[s] = tag
	}
	return ZipBytes(t, entries)
}
