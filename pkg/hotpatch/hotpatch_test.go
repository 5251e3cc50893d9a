// SPDX-License-Identifier: MPL-2.0

package hotpatch

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/CtripMobile/DynamicAPK/internal/host"
	"github.com/CtripMobile/DynamicAPK/internal/testutil"
	"github.com/CtripMobile/DynamicAPK/pkg/loader"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

type injectCall struct {
	artifacts []string
	prepend   bool
}

type recordingInjector struct {
	mu    sync.Mutex
	calls []injectCall
	fail  func(artifacts []string) error
}

func (r *recordingInjector) Inject(artifacts []string, _ string, prepend bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(artifacts); err != nil {
			return err
		}
	}
	r.calls = append(r.calls, injectCall{artifacts: slices.Clone(artifacts), prepend: prepend})
	return nil
}

func newRuntime(t *testing.T) (*host.Runtime, *loader.Injector, string) {
	t.Helper()
	dir := t.TempDir()
	base := testutil.WriteZip(t, dir, "host.zip", testutil.Entries{"app.Pay": "host", "app.Main": "host"})
	rt := host.New(host.Options{Version: "v23"})
	if err := rt.Preload(base); err != nil {
		t.Fatalf("Preload() error: %v", err)
	}
	inj, err := loader.NewInjector(rt, loader.DefaultTable())
	if err != nil {
		t.Fatalf("NewInjector() error: %v", err)
	}
	return rt, inj, base
}

func TestParseEntryName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		version int
		ok      bool
	}{
		{"payfix_3", "payfix", 3, true},
		{"pay_fix_12", "pay_fix", 12, true},
		{"payfix", "", 0, false},
		{"payfix_0", "", 0, false},
		{"payfix_x", "", 0, false},
		{"_4", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			base, version, ok := ParseEntryName(tt.name)
			if base != tt.base || version != tt.version || ok != tt.ok {
				t.Errorf("ParseEntryName(%q) = %q, %d, %v; want %q, %d, %v",
					tt.name, base, version, ok, tt.base, tt.version, tt.ok)
			}
		})
	}
}

func TestStore_GlobalVersionCounter(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "patches")
	inj := &recordingInjector{}
	s := New(root, inj)

	for _, name := range []types.PatchName{"x", "y"} {
		ok, err := s.Install(name, bytes.NewReader(testutil.CodePayload(t, string(name), "app.Pay")))
		if !ok || err != nil {
			t.Fatalf("Install(%s) = %v, %v", name, ok, err)
		}
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("Entries() len = %d, want 2", len(entries))
	}
	if entries[0].ID != "y_2" || entries[1].ID != "x_1" {
		t.Errorf("Entries() = %s, %s; want y_2, x_1", entries[0].ID, entries[1].ID)
	}
	for _, c := range inj.calls {
		if !c.prepend {
			t.Errorf("Inject(%v) called with prepend = false", c.artifacts)
		}
	}
	testutil.AssertExists(t, filepath.Join(root, "x_1", PayloadFileName))
	testutil.AssertExists(t, filepath.Join(root, "y_2", PayloadFileName))
}

func TestStore_ReinstallReplaces(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root, &recordingInjector{})

	first := testutil.CodePayload(t, "first", "app.Pay")
	second := testutil.CodePayload(t, "second", "app.Pay")

	if ok, err := s.Install("payfix", bytes.NewReader(first)); !ok || err != nil {
		t.Fatalf("Install(first) = %v, %v", ok, err)
	}
	if ok, err := s.Install("PayFix_rst", bytes.NewReader(second)); !ok || err != nil {
		t.Fatalf("Install(second) = %v, %v", ok, err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %+v, want one entry", entries)
	}
	if entries[0].Version != 2 || entries[0].BaseName != "PayFix" {
		t.Errorf("entry = %+v, want PayFix version 2", entries[0])
	}
	if got := testutil.MustReadFile(t, entries[0].PayloadPath); !bytes.Equal(got, second) {
		t.Error("payload is not the later install")
	}
	testutil.AssertNotExists(t, filepath.Join(root, "payfix_1"))
}

func TestStore_ReinstallNewestAdvancesVersion(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var reject bool
	inj := &recordingInjector{fail: func([]string) error {
		if reject {
			return errors.New("rejected")
		}
		return nil
	}}
	s := New(root, inj)

	if ok, err := s.Install("x", bytes.NewReader(testutil.CodePayload(t, "x1", "app.Pay"))); !ok || err != nil {
		t.Fatalf("Install(x) = %v, %v", ok, err)
	}
	before := s.Entries()[0].Version

	reject = true
	ok, err := s.Install("x", bytes.NewReader(testutil.CodePayload(t, "x2", "app.Pay")))
	if ok || err == nil {
		t.Fatalf("Install(x) with rejecting injector = %v, %v; want failure", ok, err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %+v, want one entry", entries)
	}
	if entries[0].Version <= before || entries[0].ID != "x_2" {
		t.Errorf("entry = %+v, want x_2 after version %d", entries[0], before)
	}
	testutil.AssertNotExists(t, filepath.Join(root, "x_1"))

	// The replacement was never applied, so Run must pick it up.
	reject = false
	if n := s.Run(); n != 1 {
		t.Errorf("Run() = %d, want 1", n)
	}
	if n := s.Run(); n != 0 {
		t.Errorf("second Run() = %d, want 0", n)
	}
}

func TestStore_InstallErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var outcomes []error
	s := New(root, &recordingInjector{}, WithInstallObserver(func(err error) { outcomes = append(outcomes, err) }))

	if ok, err := s.Install("", bytes.NewReader(nil)); ok || !errors.Is(err, types.ErrInvalidPatchName) {
		t.Errorf("Install(empty name) = %v, %v; want ErrInvalidPatchName", ok, err)
	}
	if ok, err := s.Install("../up", bytes.NewReader(nil)); ok || !errors.Is(err, types.ErrInvalidPatchName) {
		t.Errorf("Install(../up) = %v, %v; want ErrInvalidPatchName", ok, err)
	}
	if ok, err := s.Install("fix", nil); ok || !errors.Is(err, ErrNilPayload) {
		t.Errorf("Install(nil payload) = %v, %v; want ErrNilPayload", ok, err)
	}
	if len(outcomes) != 3 {
		t.Errorf("observer called %d times, want 3", len(outcomes))
	}
	if entries := s.Entries(); len(entries) != 0 {
		t.Errorf("Entries() = %+v, want none", entries)
	}
}

func TestStore_InvalidPayloadStoredNotApplied(t *testing.T) {
	t.Parallel()

	inj := &recordingInjector{}
	s := New(t.TempDir(), inj)

	ok, err := s.Install("broken", strings.NewReader("not an archive"))
	if ok || err == nil {
		t.Fatalf("Install(garbage) = %v, %v; want false with error", ok, err)
	}
	if len(inj.calls) != 0 {
		t.Errorf("injector called %d times, want 0", len(inj.calls))
	}
	if entries := s.Entries(); len(entries) != 1 || entries[0].ID != "broken_1" {
		t.Errorf("Entries() = %+v, want broken_1 kept on disk", entries)
	}
}

func TestStore_InjectFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := New(t.TempDir(), &recordingInjector{fail: func([]string) error { return boom }})

	ok, err := s.Install("fix", bytes.NewReader(testutil.CodePayload(t, "fix", "app.Pay")))
	if ok || !errors.Is(err, boom) {
		t.Errorf("Install() = %v, %v; want false wrapping boom", ok, err)
	}
}

func TestStore_NewestPatchWins(t *testing.T) {
	t.Parallel()

	rt, inj, base := newRuntime(t)
	s := New(t.TempDir(), inj)

	if ok, err := s.Install("a", bytes.NewReader(testutil.CodePayload(t, "a", "app.Pay"))); !ok || err != nil {
		t.Fatalf("Install(a) = %v, %v", ok, err)
	}
	if ok, err := s.Install("b", bytes.NewReader(testutil.CodePayload(t, "b", "app.Pay"))); !ok || err != nil {
		t.Fatalf("Install(b) = %v, %v", ok, err)
	}

	entries := s.Entries()
	want := []string{entries[0].PayloadPath, entries[1].PayloadPath, base}
	if got := rt.SearchPath(); !slices.Equal(got, want) {
		t.Errorf("SearchPath() = %v, want %v", got, want)
	}
	if got, _ := rt.Resolve("app.Pay"); got != entries[0].PayloadPath {
		t.Errorf("app.Pay resolved from %s, want newest patch", got)
	}
	if got, _ := rt.Resolve("app.Main"); got != base {
		t.Errorf("app.Main resolved from %s, want host artifact", got)
	}
}

func TestStore_RunAppliesStoredPatches(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writer := New(root, &recordingInjector{})
	for _, name := range []types.PatchName{"a", "b"} {
		if ok, err := writer.Install(name, bytes.NewReader(testutil.CodePayload(t, string(name), "app.Pay"))); !ok || err != nil {
			t.Fatalf("Install(%s) = %v, %v", name, ok, err)
		}
	}
	testutil.MustMkdirAll(t, filepath.Join(root, "noversion"))
	testutil.MustMkdirAll(t, filepath.Join(root, "bad_3"))
	testutil.MustWriteFile(t, filepath.Join(root, "bad_3", PayloadFileName), []byte("junk"))

	rt, inj, base := newRuntime(t)
	s := New(root, inj)

	if n := s.Run(); n != 2 {
		t.Fatalf("Run() = %d, want 2", n)
	}
	want := []string{
		filepath.Join(root, "b_2", PayloadFileName),
		filepath.Join(root, "a_1", PayloadFileName),
		base,
	}
	if got := rt.SearchPath(); !slices.Equal(got, want) {
		t.Errorf("SearchPath() = %v, want %v", got, want)
	}
	if n := s.Run(); n != 0 {
		t.Errorf("second Run() = %d, want 0", n)
	}
	if got := len(s.Entries()); got != 3 {
		t.Errorf("Entries() len = %d, want 3", got)
	}
}

func TestStore_RunFallsBackPerEntry(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writer := New(root, &recordingInjector{})
	for _, name := range []types.PatchName{"a", "b", "c"} {
		if ok, err := writer.Install(name, bytes.NewReader(testutil.CodePayload(t, string(name), "app.Pay"))); !ok || err != nil {
			t.Fatalf("Install(%s) = %v, %v", name, ok, err)
		}
	}

	failing := filepath.Join(root, "b_2", PayloadFileName)
	inj := &recordingInjector{fail: func(artifacts []string) error {
		if len(artifacts) > 1 || artifacts[0] == failing {
			return errors.New("rejected")
		}
		return nil
	}}
	s := New(root, inj)

	if n := s.Run(); n != 2 {
		t.Fatalf("Run() = %d, want 2", n)
	}
	var order []string
	for _, c := range inj.calls {
		order = append(order, filepath.Base(filepath.Dir(c.artifacts[0])))
	}
	if want := []string{"a_1", "c_3"}; !slices.Equal(order, want) {
		t.Errorf("per-entry apply order = %v, want %v", order, want)
	}
}

func TestStore_Purge(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "patches")
	var sizes []int
	s := New(root, &recordingInjector{}, WithSizeObserver(func(n int) { sizes = append(sizes, n) }))

	if ok, err := s.Install("fix", bytes.NewReader(testutil.CodePayload(t, "fix", "app.Pay"))); !ok || err != nil {
		t.Fatalf("Install() = %v, %v", ok, err)
	}
	if err := s.Purge(); err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	testutil.AssertNotExists(t, root)
	if entries := s.Entries(); len(entries) != 0 {
		t.Errorf("Entries() after Purge = %+v", entries)
	}
	if len(sizes) == 0 || sizes[len(sizes)-1] != 0 {
		t.Errorf("size observer saw %v, want last value 0", sizes)
	}

	if ok, err := s.Install("fix", bytes.NewReader(testutil.CodePayload(t, "fix", "app.Pay"))); !ok || err != nil {
		t.Fatalf("Install() after Purge = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(root, "fix_1")); err != nil {
		t.Errorf("version after purge did not restart at 1: %v", err)
	}
}
