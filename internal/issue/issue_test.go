// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_OrderedAndComplete(t *testing.T) {
	vals := Values()
	if len(vals) != len(issues) {
		t.Fatalf("Values() len = %d, want %d", len(vals), len(issues))
	}
	for i, v := range vals {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
		if strings.TrimSpace(string(v.MarkdownMsg())) == "" {
			t.Errorf("issue %d has an empty message", v.Id())
		}
	}
}

func TestGet(t *testing.T) {
	if got := Get(StorageLockedId); got == nil || !strings.Contains(string(got.MarkdownMsg()), "Storage root is in use") {
		t.Errorf("Get(StorageLockedId) = %v", got)
	}
	if got := Get(Id(0)); got != nil {
		t.Errorf("Get(0) = %v, want nil", got)
	}
}

func TestIssue_DocLinksCloned(t *testing.T) {
	i := &Issue{id: 99, docLinks: []HttpLink{"https://example.com/a"}}
	links := i.DocLinks()
	links[0] = "modified"
	if i.DocLinks()[0] != "https://example.com/a" {
		t.Error("DocLinks() returned the backing slice")
	}
}

func TestIssue_Render(t *testing.T) {
	original := render
	defer func() { render = original }()

	var gotStyle string
	render = func(in, stylePath string) (string, error) {
		gotStyle = stylePath
		return in, nil
	}

	i := &Issue{id: 99, mdMsg: "# Title", docLinks: []HttpLink{"https://example.com/doc"}}
	out, err := i.Render("notty")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if gotStyle != "notty" {
		t.Errorf("style = %q, want notty", gotStyle)
	}
	for _, want := range []string{"# Title", "## See also", "<https://example.com/doc>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() output missing %q:\n%s", want, out)
		}
	}

	plain, err := Get(ModuleNotFoundId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(plain, "See also") {
		t.Error("Render() added a links section without links")
	}
}
