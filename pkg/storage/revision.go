// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

const (
	// PayloadFileName is the payload file inside an embedded revision.
	PayloadFileName = "payload.bin"

	// PreparedMarkerName is written into a revision directory once its code
	// has been spliced into the host search path.
	PreparedMarkerName = "payload.opt"

	revisionDirPrefix = "version_"
)

// Revision is one immutable on-disk version of a module payload. Only the
// prepared marker changes after creation.
type Revision struct {
	number      types.RevisionNumber
	dir         string
	payloadPath string
	tag         SourceTag
}

// RevisionDirName returns the directory name of revision n ("version_<n>").
func RevisionDirName(n types.RevisionNumber) string {
	return revisionDirPrefix + n.String()
}

// ParseRevisionDirName extracts n from "version_<n>". It reports false for
// other names and for n == 0.
func ParseRevisionDirName(name string) (types.RevisionNumber, bool) {
	s, ok := strings.CutPrefix(name, revisionDirPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return types.RevisionNumber(n), true
}

func newRevision(n types.RevisionNumber, dir string, tag SourceTag) *Revision {
	r := &Revision{number: n, dir: dir, tag: tag}
	if tag.Kind == Referenced {
		r.payloadPath = tag.Path
	} else {
		r.payloadPath = filepath.Join(dir, PayloadFileName)
	}
	return r
}

// openRevision materializes an existing revision directory. The directory
// must carry a readable meta record.
func openRevision(n types.RevisionNumber, dir string) (*Revision, error) {
	tag, err := ReadRevisionTag(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, err
	}
	return newRevision(n, dir, tag), nil
}

// writeRevision fills dir with the payload (embedded tags only) and the
// meta record. dir must already exist.
func writeRevision(n types.RevisionNumber, dir string, tag SourceTag, payload io.Reader) (*Revision, error) {
	r := newRevision(n, dir, tag)
	if tag.Kind == Embedded {
		if payload == nil {
			return nil, newStorageError("write payload", r.payloadPath, errors.New("nil payload stream"))
		}
		if err := copyToFile(payload, r.payloadPath); err != nil {
			return nil, newStorageError("write payload", r.payloadPath, err)
		}
	}
	if err := WriteRevisionTag(filepath.Join(dir, MetaFileName), tag); err != nil {
		return nil, err
	}
	return r, nil
}

func copyToFile(src io.Reader, dst string) (err error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err = io.Copy(f, src); err != nil {
		return err
	}
	return f.Sync()
}

// Number returns the revision number.
func (r *Revision) Number() types.RevisionNumber { return r.number }

// Dir returns the revision directory.
func (r *Revision) Dir() string { return r.dir }

// PayloadPath returns the file holding the payload. For referenced
// revisions this lies outside the storage root.
func (r *Revision) PayloadPath() string { return r.payloadPath }

// Tag returns the revision's source tag.
func (r *Revision) Tag() SourceTag { return r.tag }

// IsInstalled reports whether the payload exists and is a well-formed
// ZIP container.
func (r *Revision) IsInstalled() bool {
	return ValidatePayload(r.payloadPath) == nil
}

// IsPrepared reports whether the prepared marker exists.
func (r *Revision) IsPrepared() bool {
	_, err := os.Stat(filepath.Join(r.dir, PreparedMarkerName))
	return err == nil
}

// MarkPrepared writes the prepared marker listing the spliced artifacts.
func (r *Revision) MarkPrepared(artifacts []string) error {
	sorted := slices.Clone(artifacts)
	slices.Sort(sorted)
	var b strings.Builder
	for _, a := range sorted {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	path := filepath.Join(r.dir, PreparedMarkerName)
	if err := writeFileAtomic(path, []byte(b.String())); err != nil {
		return newStorageError("mark prepared", path, err)
	}
	return nil
}

// OpenEntry streams a file out of the revision payload.
func (r *Revision) OpenEntry(name string) (io.ReadCloser, error) {
	return OpenPayloadEntry(r.payloadPath, name)
}

// OpenAsset streams assets/<name> out of the revision payload.
func (r *Revision) OpenAsset(name string) (io.ReadCloser, error) {
	return OpenPayloadAsset(r.payloadPath, name)
}

// String returns a short description for logs.
func (r *Revision) String() string {
	return fmt.Sprintf("revision %d (%s)", r.number, r.tag)
}
