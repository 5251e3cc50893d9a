// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/zip"
)

const (
	zipMIME = "application/zip"

	// AssetsDir is the payload directory OpenAsset reads from.
	AssetsDir = "assets"
)

type entryReadCloser struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (e *entryReadCloser) Close() error {
	err := e.ReadCloser.Close()
	if cerr := e.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

// ValidatePayload checks that the file at p is a readable ZIP container.
// JAR and APK payloads qualify since they are ZIP based.
func ValidatePayload(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return &ValidationError{Path: p, Reason: "payload is missing", Err: err}
	}
	if !info.Mode().IsRegular() {
		return &ValidationError{Path: p, Reason: "payload is not a regular file"}
	}

	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return &ValidationError{Path: p, Reason: "cannot sniff content type", Err: err}
	}
	if !isZipFamily(mt) {
		return &ValidationError{Path: p, Reason: fmt.Sprintf("content type %s is not a ZIP container", mt.String())}
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return &ValidationError{Path: p, Reason: "malformed ZIP container", Err: err}
	}
	if err := zr.Close(); err != nil {
		return &ValidationError{Path: p, Reason: "malformed ZIP container", Err: err}
	}
	return nil
}

func isZipFamily(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(zipMIME) {
			return true
		}
	}
	return false
}

// PayloadEntries returns the sorted names of the regular files inside the
// payload container at p.
func PayloadEntries(p string) ([]string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, &ValidationError{Path: p, Reason: "malformed ZIP container", Err: err}
	}
	defer func() { _ = zr.Close() }()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return names, nil
}

// OpenPayloadEntry streams the named entry out of the payload container at
// p. A missing entry yields an error matching fs.ErrNotExist.
func OpenPayloadEntry(p, name string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, newStorageError("open payload", p, err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			_ = zr.Close()
			return nil, newStorageError("open entry "+name, p, err)
		}
		return &entryReadCloser{ReadCloser: rc, archive: zr}, nil
	}
	_ = zr.Close()
	return nil, newStorageError("open entry "+name, p, fs.ErrNotExist)
}

// OpenPayloadAsset streams assets/<name> out of the payload container at p.
func OpenPayloadAsset(p, name string) (io.ReadCloser, error) {
	if !fs.ValidPath(name) {
		return nil, newStorageError("open asset", p, fmt.Errorf("%w: %q", errInvalidEntryName, name))
	}
	return OpenPayloadEntry(p, path.Join(AssetsDir, name))
}

var errInvalidEntryName = errors.New("invalid entry name")
