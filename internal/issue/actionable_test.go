// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{"operation only", &ActionableError{Operation: "install module"}, "failed to install module"},
		{"with resource", &ActionableError{Operation: "install module", Resource: "com.a"}, "failed to install module: com.a"},
		{"with cause", &ActionableError{Operation: "install module", Cause: cause}, "failed to install module: disk full"},
		{
			"all fields",
			&ActionableError{Operation: "install module", Resource: "com.a", Cause: cause},
			"failed to install module: com.a: disk full",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := NewErrorContext().WithOperation("update module").Wrap(sentinel).BuildError()
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is() did not reach the cause")
	}
	var ae *ActionableError
	if !errors.As(err, &ae) || ae.Operation != "update module" {
		t.Errorf("errors.As() = %+v", ae)
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	outer := errors.Join(inner)
	err := &ActionableError{
		Operation:   "prepare modules",
		Suggestions: []string{"run dynapk list", "check host.version"},
		Cause:       outer,
	}

	short := err.Format(false)
	if !strings.Contains(short, "\n  • run dynapk list") || !strings.Contains(short, "\n  • check host.version") {
		t.Errorf("Format(false) missing suggestions:\n%s", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Errorf("Format(false) contains the error chain:\n%s", short)
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:") || !strings.Contains(long, "1. inner") {
		t.Errorf("Format(true) missing the chain:\n%s", long)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation returned non-nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want nil interface", err)
	}

	ae := NewErrorContext().
		WithOperation("install patch").
		WithResource("payfix").
		WithSuggestion("a").
		WithSuggestions("b", "c").
		WithIssue(PatchNameInvalidId).
		Build()
	if ae.Resource != "payfix" || len(ae.Suggestions) != 3 || ae.Issue != PatchNameInvalidId || !ae.HasSuggestions() {
		t.Errorf("Build() = %+v", ae)
	}
}

func TestWrapWithOperation(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil {
		t.Error("WrapWithOperation(nil) != nil")
	}
	cause := errors.New("boom")
	ae := WrapWithOperation(cause, "resolve symbol")
	if ae.Operation != "resolve symbol" || ae.Cause != cause || ae.HasSuggestions() {
		t.Errorf("WrapWithOperation() = %+v", ae)
	}
}
