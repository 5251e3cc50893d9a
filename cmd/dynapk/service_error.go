// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/CtripMobile/DynamicAPK/internal/config"
	"github.com/CtripMobile/DynamicAPK/internal/framework"
	"github.com/CtripMobile/DynamicAPK/internal/issue"
	"github.com/CtripMobile/DynamicAPK/internal/storagelock"
	"github.com/CtripMobile/DynamicAPK/pkg/loader"
	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// ServiceError is an error carrying how the CLI should present it: an
// issue catalog entry to render and the process exit code.
// Always create via newServiceError.
type ServiceError struct {
	Err      error
	IssueID  issue.Id
	ExitCode int
}

// Exit codes beyond the generic 1.
const (
	exitPartial = 2
	exitLocked  = 3
)

func newServiceError(err error, issueID issue.Id, exitCode int) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{Err: err, IssueID: issueID, ExitCode: exitCode}
}

func (e *ServiceError) Error() string { return e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// classifyIssue maps err to the catalog entry that explains it.
func classifyIssue(err error) issue.Id {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.IssueID != 0 {
		return svcErr.IssueID
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}

	switch {
	case errors.Is(err, framework.ErrModuleNotFound):
		return issue.ModuleNotFoundId
	case errors.Is(err, storage.ErrInvalidPayload):
		return issue.PayloadInvalidId
	case errors.Is(err, storage.ErrCorruptMetadata), errors.Is(err, storage.ErrNoRevisions):
		return issue.StorageCorruptId
	case errors.Is(err, storagelock.ErrLocked):
		return issue.StorageLockedId
	case errors.Is(err, loader.ErrNoAdapter):
		return issue.NoAdapterId
	case errors.Is(err, loader.ErrHostMismatch):
		return issue.HostMismatchId
	case errors.Is(err, types.ErrInvalidPatchName):
		return issue.PatchNameInvalidId
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, config.ErrInvalidLoadOptions):
		return issue.ConfigLoadFailedId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	default:
		return 0
	}
}

// withIssue wraps err in a ServiceError when it maps to a catalog entry.
func withIssue(err error) error {
	if err == nil {
		return nil
	}
	id := classifyIssue(err)
	code := 0
	if errors.Is(err, storagelock.ErrLocked) {
		code = exitLocked
	}
	if id == 0 && code == 0 {
		return err
	}
	return newServiceError(err, id, code)
}

// renderIssue writes the catalog entry explaining err, if any.
func renderIssue(w io.Writer, err error) {
	id := classifyIssue(err)
	if id == 0 {
		return
	}
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, renderErr := entry.Render("dark")
	if renderErr != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", renderErr)
		return
	}
	fmt.Fprint(w, rendered)
}
