// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/CtripMobile/DynamicAPK/internal/config"
	"github.com/CtripMobile/DynamicAPK/internal/framework"
	"github.com/CtripMobile/DynamicAPK/internal/issue"
	"github.com/CtripMobile/DynamicAPK/internal/testutil"
	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// testEnv is a base directory with a config file and a host container
// defining app.Main and app.Pay.
type testEnv struct {
	base    string
	cfgPath string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	base := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(base, "host.zip"), testutil.CodePayload(t, "host", "app.Main", "app.Pay"))

	cfgPath := filepath.Join(base, "config.cue")
	cue := fmt.Sprintf(`base_dir: %q
host: {
	version: "v23"
	resources: ["host.zip"]
}
log: level: "warn"
`, base)
	testutil.MustWriteFile(t, cfgPath, []byte(cue))
	return testEnv{base: base, cfgPath: cfgPath}
}

// payload writes a code payload into the env's base directory.
func (e testEnv) payload(t *testing.T, name, tag string, symbols ...string) string {
	t.Helper()
	p := filepath.Join(e.base, name)
	testutil.MustWriteFile(t, p, testutil.CodePayload(t, tag, symbols...))
	return p
}

func (e testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{Stdout: &stdout, Stderr: &stderr})
	root := NewRootCommand(app)
	root.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func (e testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("dynapk %s: %v\nstderr:\n%s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func TestCLI_ModuleLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	v1 := env.payload(t, "pay-v1.zip", "pay-v1", "app.Pay")
	v2 := env.payload(t, "pay-v2.zip", "pay-v2", "app.Pay")

	out := env.mustRun(t, "install", "com.example.pay", v1)
	if !strings.Contains(out, "as module 1 (revision 1)") {
		t.Errorf("install output = %q", out)
	}
	if out := env.mustRun(t, "install", "com.example.pay", v2); !strings.Contains(out, "already installed") {
		t.Errorf("second install output = %q", out)
	}
	if out := env.mustRun(t, "update", "com.example.pay", v2); !strings.Contains(out, "revision 2") {
		t.Errorf("update output = %q", out)
	}

	var list moduleList
	if err := json.Unmarshal([]byte(env.mustRun(t, "list", "-o", "json")), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Modules) != 1 {
		t.Fatalf("listed %d modules, want 1", len(list.Modules))
	}
	got := list.Modules[0]
	if got.ID != 1 || got.Location != "com.example.pay" || got.Revision != 2 || got.Revisions != 2 {
		t.Errorf("listed module = %+v", got)
	}
	if got.State != bundle.Installed.String() {
		t.Errorf("state = %q, want %q", got.State, bundle.Installed)
	}

	for _, ref := range []string{"1", "com.example.pay"} {
		if out := env.mustRun(t, "info", ref); !strings.Contains(out, "com.example.pay") || !strings.Contains(out, "2 of 2") {
			t.Errorf("info %s output = %q", ref, out)
		}
	}

	if out := env.mustRun(t, "uninstall", "com.example.pay"); !strings.Contains(out, "back to revision 1") {
		t.Errorf("uninstall output = %q", out)
	}
	if out := env.mustRun(t, "uninstall", "com.example.pay"); !strings.Contains(out, "last revision") {
		t.Errorf("final uninstall output = %q", out)
	}
	// A module without revisions is not restored by the next process.
	_, _, err := env.run(t, "uninstall", "com.example.pay")
	if !errors.Is(err, framework.ErrModuleNotFound) {
		t.Errorf("uninstall of purged module = %v, want ErrModuleNotFound", err)
	}
}

func TestCLI_InstallReference(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.payload(t, "map.zip", "map", "app.Map")
	env.mustRun(t, "install", "com.example.map", p, "--reference")

	var list moduleList
	if err := toml.Unmarshal([]byte(env.mustRun(t, "list", "-o", "toml")), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Modules) != 1 || list.Modules[0].Payload != p {
		t.Errorf("listed modules = %+v, want payload %s", list.Modules, p)
	}
}

func TestCLI_ResolveWelcomeFallback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	cue := string(testutil.MustReadFile(t, env.cfgPath)) + "welcome_fallback: \"app.Main\"\n"
	testutil.MustWriteFile(t, env.cfgPath, []byte(cue))

	out := env.mustRun(t, "resolve", "plugin.Missing")
	if !strings.Contains(out, "falling back to app.Main") || !strings.Contains(out, "host.zip") {
		t.Errorf("resolve plugin.Missing = %q, want the host welcome entry", out)
	}
	if out := env.mustRun(t, "resolve", "app.Pay"); strings.Contains(out, "falling back") {
		t.Errorf("resolve app.Pay = %q, want a direct hit", out)
	}
}

func TestCLI_PrepareResolveAndPatch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	pay := env.payload(t, "pay.zip", "module", "app.Pay", "app.Checkout")
	fix := env.payload(t, "fix.zip", "patch", "app.Pay")

	env.mustRun(t, "install", "com.example.pay", pay)

	out := env.mustRun(t, "prepare")
	if !strings.Contains(out, "1 module(s), 0 hot patch(es)") {
		t.Errorf("prepare output = %q", out)
	}
	if !strings.Contains(out, filepath.Join(env.base, "host.zip")) {
		t.Errorf("search path misses the host container:\n%s", out)
	}

	// Host containers come first; a module only adds what the host lacks.
	if out := env.mustRun(t, "resolve", "app.Pay"); !strings.Contains(out, "host.zip") {
		t.Errorf("resolve app.Pay before patch = %q, want host.zip", out)
	}
	if out := env.mustRun(t, "resolve", "app.Checkout"); !strings.Contains(out, "com.example.pay") && !strings.Contains(out, "version_1") {
		t.Errorf("resolve app.Checkout = %q, want the module payload", out)
	}

	if out := env.mustRun(t, "patch", "install", "payfix", fix); !strings.Contains(out, "payfix_1") {
		t.Errorf("patch install output = %q", out)
	}
	if out := env.mustRun(t, "resolve", "app.Pay"); !strings.Contains(out, "payfix_1") {
		t.Errorf("resolve app.Pay after patch = %q, want the hot patch", out)
	}
	if out := env.mustRun(t, "resolve", "--resource", "app.Main"); !strings.Contains(out, "host.zip") {
		t.Errorf("resolve --resource app.Main = %q", out)
	}

	_, _, err := env.run(t, "resolve", "app.Nowhere")
	if err == nil {
		t.Error("resolve of an unknown symbol succeeded")
	}
}

func TestCLI_PatchListAndPurge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	a := env.payload(t, "a.zip", "a", "app.A")
	b := env.payload(t, "b.zip", "b", "app.B")
	junk := filepath.Join(env.base, "junk.zip")
	testutil.MustWriteFile(t, junk, []byte("not a zip"))

	env.mustRun(t, "patch", "install", "alpha", a)
	env.mustRun(t, "patch", "install", "beta", b)
	_, stderr, err := env.run(t, "patch", "install", "gamma", junk)
	if err == nil || !strings.Contains(stderr, "stored but cannot be applied") {
		t.Errorf("junk patch: err = %v, stderr = %q", err, stderr)
	}
	if id := classifyIssue(err); id != issue.PayloadInvalidId {
		t.Errorf("junk patch issue = %v, want PayloadInvalidId", id)
	}

	var list patchList
	if err := json.Unmarshal([]byte(env.mustRun(t, "patch", "list", "-o", "json")), &list); err != nil {
		t.Fatalf("decode patch list: %v", err)
	}
	var ids []string
	for _, p := range list.Patches {
		ids = append(ids, p.ID)
	}
	if want := []string{"gamma_3", "beta_2", "alpha_1"}; strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("patch ids = %v, want %v", ids, want)
	}
	if out := env.mustRun(t, "patch", "list"); !strings.Contains(out, "invalid") {
		t.Errorf("patch list does not flag the junk patch:\n%s", out)
	}

	if out := env.mustRun(t, "patch", "purge"); !strings.Contains(out, "Purged 3") {
		t.Errorf("purge output = %q", out)
	}
	if out := env.mustRun(t, "patch", "list"); !strings.Contains(out, "no hot patches") {
		t.Errorf("patch list after purge = %q", out)
	}
}

func TestCLI_Errors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	p := env.payload(t, "p.zip", "p", "app.P")

	tests := []struct {
		name      string
		args      []string
		wantErr   error
		wantIssue issue.Id
	}{
		{
			name:      "update unknown module",
			args:      []string{"update", "com.example.none", p},
			wantErr:   framework.ErrModuleNotFound,
			wantIssue: issue.ModuleNotFoundId,
		},
		{
			name:      "info unknown module",
			args:      []string{"info", "42"},
			wantErr:   framework.ErrModuleNotFound,
			wantIssue: issue.ModuleNotFoundId,
		},
		{
			name:    "invalid output format",
			args:    []string{"list", "-o", "yaml"},
			wantErr: ErrInvalidOutputFormat,
		},
		{
			name:    "invalid log level",
			args:    []string{"--log-level", "loud", "list"},
			wantErr: config.ErrInvalidLogLevel,
		},
		{
			name:    "invalid location",
			args:    []string{"install", "", p},
			wantErr: types.ErrInvalidLocation,
		},
		{
			name:      "invalid patch name",
			args:      []string{"patch", "install", "../up", p},
			wantErr:   types.ErrInvalidPatchName,
			wantIssue: issue.PatchNameInvalidId,
		},
		{
			name:    "missing payload file",
			args:    []string{"install", "com.example.p", filepath.Join(env.base, "absent.zip")},
			wantErr: os.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantIssue != 0 {
				if id := classifyIssue(err); id != tt.wantIssue {
					t.Errorf("issue = %v, want %v", id, tt.wantIssue)
				}
			}
		})
	}
}

func TestCLI_ConfigInitAndShow(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	env := testEnv{cfgPath: filepath.Join(dir, "config.cue")}

	// The config file does not exist yet; init must still run.
	out := env.mustRun(t, "config", "init", "--dir", dir)
	if !strings.Contains(out, env.cfgPath) {
		t.Errorf("config init output = %q", out)
	}
	testutil.AssertExists(t, env.cfgPath)

	var cfg config.Config
	if err := json.Unmarshal([]byte(env.mustRun(t, "config", "show", "-o", "json")), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if def := config.DefaultConfig(); cfg.Host.Version != def.Host.Version || cfg.Metrics.Port != def.Metrics.Port {
		t.Errorf("shown config = %+v", cfg)
	}
	if out := env.mustRun(t, "config", "show"); !strings.Contains(out, "host.version") {
		t.Errorf("config show output = %q", out)
	}
}

func TestClassifyIssue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{name: "module not found", err: &framework.ModuleError{Op: "update", Err: framework.ErrModuleNotFound}, want: issue.ModuleNotFoundId},
		{name: "permission", err: fmt.Errorf("open: %w", os.ErrPermission), want: issue.PermissionDeniedId},
		{
			name: "actionable error issue wins",
			err:  issue.NewErrorContext().WithOperation("load configuration").WithIssue(issue.ConfigLoadFailedId).Wrap(os.ErrPermission).BuildError(),
			want: issue.ConfigLoadFailedId,
		},
		{name: "service error issue wins", err: newServiceError(framework.ErrModuleNotFound, issue.StorageCorruptId, 0), want: issue.StorageCorruptId},
		{name: "unclassified", err: errors.New("boom"), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := classifyIssue(tt.err); got != tt.want {
				t.Errorf("classifyIssue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithIssue(t *testing.T) {
	t.Parallel()

	if withIssue(nil) != nil {
		t.Error("withIssue(nil) != nil")
	}
	plain := errors.New("plain")
	if got := withIssue(plain); got != plain {
		t.Errorf("withIssue(plain) = %v, want the same error", got)
	}

	var svcErr *ServiceError
	if err := withIssue(framework.ErrModuleNotFound); !errors.As(err, &svcErr) || svcErr.IssueID != issue.ModuleNotFoundId {
		t.Errorf("withIssue(ErrModuleNotFound) = %#v", err)
	}
}

func TestOutputFormat_Validate(t *testing.T) {
	t.Parallel()

	for _, f := range []OutputFormat{OutputText, OutputJSON, OutputTOML} {
		if err := f.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", f, err)
		}
	}
	err := OutputFormat("xml").Validate()
	var fe *InvalidOutputFormatError
	if !errors.As(err, &fe) || fe.Value != "xml" || !errors.Is(err, ErrInvalidOutputFormat) {
		t.Errorf("Validate(xml) = %v", err)
	}
}
