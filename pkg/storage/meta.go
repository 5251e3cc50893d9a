// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

const (
	// MetaFileName is the name of every metadata record file.
	MetaFileName = "meta"

	embeddedTagText   = "file:"
	referencedTagText = "reference:"
)

// Source kinds of a revision payload.
const (
	Embedded SourceKind = iota
	Referenced
)

type (
	// SourceKind tells whether a revision owns its payload or points at an
	// external file.
	SourceKind int

	// SourceTag is the persisted origin of a revision payload.
	SourceTag struct {
		Kind SourceKind
		// Path is the referenced payload file. Empty for Embedded tags.
		Path string
	}
)

// EmbeddedTag returns the tag of a revision whose payload was copied into
// the revision directory.
func EmbeddedTag() SourceTag { return SourceTag{Kind: Embedded} }

// ReferencedTag returns the tag of a revision that reads its payload from path.
func ReferencedTag(path string) SourceTag { return SourceTag{Kind: Referenced, Path: path} }

// String returns the persisted text form ("file:" or "reference:<path>").
func (t SourceTag) String() string {
	if t.Kind == Referenced {
		return referencedTagText + t.Path
	}
	return embeddedTagText
}

// ParseSourceTag parses the text form produced by SourceTag.String.
// Any "file:" prefixed tag is embedded; older hosts appended a path to it.
func ParseSourceTag(s string) (SourceTag, error) {
	switch {
	case strings.HasPrefix(s, embeddedTagText):
		return EmbeddedTag(), nil
	case strings.HasPrefix(s, referencedTagText):
		path := strings.TrimPrefix(s, referencedTagText)
		if path == "" {
			return SourceTag{}, fmt.Errorf("%w: reference tag without a path", ErrCorruptMetadata)
		}
		return ReferencedTag(path), nil
	default:
		return SourceTag{}, fmt.Errorf("%w: unknown source tag %q", ErrCorruptMetadata, s)
	}
}

// WriteCounter persists the next module id to the storage-root record.
func WriteCounter(path string, next types.ModuleID) error {
	var buf bytes.Buffer
	writeInt64(&buf, uint64(next))
	return writeRecord("write counter", path, buf.Bytes())
}

// ReadCounter reads the next module id from the storage-root record.
func ReadCounter(path string) (types.ModuleID, error) {
	r, err := readRecord("read counter", path)
	if err != nil {
		return 0, err
	}
	n, err := readInt64(r)
	if err == nil {
		err = expectEOF(r)
	}
	if err != nil {
		return 0, newStorageError("read counter", path, err)
	}
	return types.ModuleID(n), nil
}

// WriteModuleRecord persists a module's id and location.
func WriteModuleRecord(path string, id types.ModuleID, location types.Location) error {
	var buf bytes.Buffer
	writeInt64(&buf, uint64(id))
	if err := writeUTF(&buf, string(location)); err != nil {
		return newStorageError("write module record", path, err)
	}
	return writeRecord("write module record", path, buf.Bytes())
}

// ReadModuleRecord reads a module's id and location.
func ReadModuleRecord(path string) (types.ModuleID, types.Location, error) {
	r, err := readRecord("read module record", path)
	if err != nil {
		return 0, "", err
	}
	n, err := readInt64(r)
	if err != nil {
		return 0, "", newStorageError("read module record", path, err)
	}
	s, err := readUTF(r)
	if err == nil {
		err = expectEOF(r)
	}
	if err != nil {
		return 0, "", newStorageError("read module record", path, err)
	}
	id, loc := types.ModuleID(n), types.Location(s)
	if err := id.Validate(); err != nil {
		return 0, "", newStorageError("read module record", path, fmt.Errorf("%w: %w", ErrCorruptMetadata, err))
	}
	if err := loc.Validate(); err != nil {
		return 0, "", newStorageError("read module record", path, fmt.Errorf("%w: %w", ErrCorruptMetadata, err))
	}
	return id, loc, nil
}

// WriteRevisionTag persists a revision's source tag.
func WriteRevisionTag(path string, tag SourceTag) error {
	var buf bytes.Buffer
	if err := writeUTF(&buf, tag.String()); err != nil {
		return newStorageError("write revision tag", path, err)
	}
	return writeRecord("write revision tag", path, buf.Bytes())
}

// ReadRevisionTag reads a revision's source tag.
func ReadRevisionTag(path string) (SourceTag, error) {
	r, err := readRecord("read revision tag", path)
	if err != nil {
		return SourceTag{}, err
	}
	s, err := readUTF(r)
	if err == nil {
		err = expectEOF(r)
	}
	if err != nil {
		return SourceTag{}, newStorageError("read revision tag", path, err)
	}
	tag, err := ParseSourceTag(s)
	if err != nil {
		return SourceTag{}, newStorageError("read revision tag", path, err)
	}
	return tag, nil
}

func readRecord(op, path string) (*bytes.Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newStorageError(op, path, err)
	}
	return bytes.NewReader(data), nil
}

func writeRecord(op, path string, data []byte) error {
	if err := writeFileAtomic(path, data); err != nil {
		return newStorageError(op, path, err)
	}
	return nil
}

// writeFileAtomic replaces path with data: temp file in the same directory,
// fsync, rename, then a best-effort fsync of the directory.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func writeInt64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUTF(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return errors.New("string is not valid UTF-8")
	}
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string of %d bytes exceeds the %d byte record limit", len(s), math.MaxUint16)
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
	return nil
}

func readInt64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorruptMetadata, err)
	}
	v := binary.BigEndian.Uint64(b[:])
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: negative int64 value", ErrCorruptMetadata)
	}
	return v, nil
}

func readUTF(r io.Reader) (string, error) {
	var lb [2]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptMetadata, err)
	}
	b := make([]byte, binary.BigEndian.Uint16(lb[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptMetadata, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: string is not valid UTF-8", ErrCorruptMetadata)
	}
	return string(b), nil
}

func expectEOF(r *bytes.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorruptMetadata, r.Len())
	}
	return nil
}
