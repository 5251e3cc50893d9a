// SPDX-License-Identifier: MPL-2.0

package resources

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/CtripMobile/DynamicAPK/internal/testutil"
)

func TestCompositor_Layering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hostDir := filepath.Join(dir, "host-res")
	testutil.MustWriteFile(t, filepath.Join(hostDir, "values", "strings.xml"), []byte("host"))
	modA := testutil.WriteZip(t, dir, "a.zip", testutil.Entries{
		"values/strings.xml": "module a",
		"layout/pay.xml":     "a layout",
	})
	modB := testutil.WriteZip(t, dir, "b.zip", testutil.Entries{"layout/pay.xml": "b layout"})

	c := New()
	if _, _, err := c.Open("values/strings.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open() on empty view error = %v, want ErrNotFound", err)
	}

	c.Rebuild([]string{hostDir}, []string{modA, modB})
	if got, want := c.Paths(), []string{hostDir, modA, modB}; !slices.Equal(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}

	tests := []struct {
		name      string
		wantData  string
		wantOwner string
	}{
		{"values/strings.xml", "host", hostDir},
		{"layout/pay.xml", "a layout", modA},
	}
	for _, tt := range tests {
		rc, owner, err := c.Open(tt.name)
		if err != nil {
			t.Fatalf("Open(%s) error: %v", tt.name, err)
		}
		if got := testutil.MustReadAll(t, rc); string(got) != tt.wantData || owner != tt.wantOwner {
			t.Errorf("Open(%s) = %q from %s, want %q from %s", tt.name, got, owner, tt.wantData, tt.wantOwner)
		}
	}

	if _, _, err := c.Open("missing.xml"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
	if _, _, err := c.Open("../etc/passwd"); err == nil {
		t.Error("Open() accepted a path escaping the container")
	}

	c.Rebuild(nil, []string{modB})
	rc, owner, err := c.Open("layout/pay.xml")
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.MustReadAll(t, rc); string(got) != "b layout" || owner != modB {
		t.Errorf("after rebuild Open() = %q from %s", got, owner)
	}
}

func TestCompositor_SkipsUnreadableContainer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.zip")
	testutil.MustWriteFile(t, broken, []byte("0123456789"))
	good := testutil.WriteZip(t, dir, "good.zip", testutil.Entries{"r.txt": "ok"})

	c := New()
	c.Rebuild(nil, []string{broken, filepath.Join(dir, "gone.zip"), good})
	rc, owner, err := c.Open("r.txt")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	testutil.MustClose(t, rc)
	if owner != good {
		t.Errorf("Open() owner = %s, want %s", owner, good)
	}
}
