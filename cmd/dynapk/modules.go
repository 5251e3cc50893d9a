// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CtripMobile/DynamicAPK/internal/framework"
	"github.com/CtripMobile/DynamicAPK/pkg/bundle"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

func newInstallCommand(app *App) *cobra.Command {
	var reference bool
	cmd := &cobra.Command{
		Use:   "install <location> <payload>",
		Short: "Install a module payload",
		Long: `Install a module payload at a location.

The payload is copied into module storage unless --reference is given, in
which case storage records the path and the file must stay where it is.
Installing a location that is already installed does nothing.

Examples:
  dynapk install com.example.pay pay.zip
  dynapk install com.example.map /opt/payloads/map.zip --reference`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIssue(runInstall(cmd.Context(), app, types.Location(args[0]), args[1], reference))
		},
	}
	cmd.Flags().BoolVar(&reference, "reference", false, "record the payload path instead of copying it")
	return cmd
}

func runInstall(ctx context.Context, app *App, loc types.Location, payloadPath string, reference bool) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, exists := s.registry.Get(loc); exists {
		fmt.Fprintf(app.stdout, "%s %s is already installed\n", WarningStyle.Render("!"), loc)
		return nil
	}

	var m *bundle.Module
	if reference {
		abs, err := filepath.Abs(payloadPath)
		if err != nil {
			return err
		}
		m, err = s.registry.InstallReference(ctx, loc, abs)
		if err != nil {
			return err
		}
	} else {
		f, err := os.Open(payloadPath)
		if err != nil {
			return err
		}
		defer f.Close()
		m, err = s.registry.Install(ctx, loc, f)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(app.stdout, "%s Installed %s as module %d (revision %d)\n",
		SuccessStyle.Render("✓"), loc, m.ID(), m.RevisionNumber())
	return nil
}

func newUpdateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "update <location> <payload>",
		Short: "Store a new revision of an installed module",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIssue(runUpdate(cmd.Context(), app, types.Location(args[0]), args[1]))
		},
	}
}

func runUpdate(ctx context.Context, app *App, loc types.Location, payloadPath string) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	f, err := os.Open(payloadPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.registry.Update(ctx, loc, f); err != nil {
		return err
	}
	m, _ := s.registry.Get(loc)
	fmt.Fprintf(app.stdout, "%s Updated %s to revision %d\n", SuccessStyle.Render("✓"), loc, m.RevisionNumber())
	return nil
}

func newUninstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <location>",
		Short: "Roll a module back by one revision",
		Long: `Roll a module back by one revision.

The newest revision is deleted and the previous one becomes current. When
the last revision is removed the module stays registered with no payload
until it is updated again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIssue(runUninstall(cmd.Context(), app, types.Location(args[0])))
		},
	}
}

func runUninstall(ctx context.Context, app *App, loc types.Location) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	m, ok := s.registry.Get(loc)
	if !ok {
		return &framework.ModuleError{Location: loc, Op: "uninstall", Err: framework.ErrModuleNotFound}
	}
	if m.State() == bundle.Purged {
		return &framework.ModuleError{Location: loc, Op: "uninstall", Err: bundle.ErrPurged}
	}
	before := m.RevisionNumber()
	s.registry.Uninstall(ctx, loc)
	after := m.RevisionNumber()

	switch {
	case after == before:
		return fmt.Errorf("uninstall %s: revision %d could not be removed, see log", loc, before)
	case m.State() == bundle.Purged:
		fmt.Fprintf(app.stdout, "%s Removed the last revision of %s\n", SuccessStyle.Render("✓"), loc)
	default:
		fmt.Fprintf(app.stdout, "%s Rolled %s back to revision %d\n", SuccessStyle.Render("✓"), loc, after)
	}
	return nil
}

func newListCommand(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(runList(cmd.Context(), app, OutputFormat(format)))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", string(OutputText), "output format: text, json or toml")
	return cmd
}

func runList(ctx context.Context, app *App, format OutputFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	mods := s.registry.List()
	if format != OutputText {
		list := moduleList{Modules: make([]moduleView, 0, len(mods))}
		for _, m := range mods {
			list.Modules = append(list.Modules, newModuleView(m))
		}
		return writeStructured(app.stdout, format, list)
	}

	if len(mods) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no modules installed)"))
		return nil
	}
	fmt.Fprintln(app.stdout, TitleStyle.Render("Installed modules"))
	for _, m := range mods {
		fmt.Fprintf(app.stdout, "  %4d  %-40s rev %-4d %s\n",
			m.ID(), m.Location(), m.RevisionNumber(), renderState(m.State().String()))
	}
	return nil
}

func newInfoCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info <location|id>",
		Short: "Show one module in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIssue(runInfo(cmd.Context(), app, args[0]))
		},
	}
}

func runInfo(ctx context.Context, app *App, ref string) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	m, ok := lookupModule(s.registry, ref)
	if !ok {
		return &framework.ModuleError{Location: types.Location(ref), Op: "info", Err: framework.ErrModuleNotFound}
	}

	v := newModuleView(m)
	rows := []struct{ key, value string }{
		{"id", fmt.Sprint(v.ID)},
		{"location", v.Location},
		{"state", renderState(v.State)},
		{"revision", fmt.Sprintf("%d of %d", v.Revision, v.Revisions)},
		{"source", v.Source},
		{"payload", v.Payload},
		{"dir", v.Dir},
	}
	fmt.Fprintln(app.stdout, TitleStyle.Render(m.String()))
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		fmt.Fprintf(app.stdout, "%s: %s\n", KeyStyle.Render(r.key), r.value)
	}
	return nil
}

// lookupModule resolves ref as a module id first, then as a location.
func lookupModule(reg *framework.Registry, ref string) (*bundle.Module, bool) {
	if id, err := types.ParseModuleID(ref); err == nil {
		if m, ok := reg.GetByID(id); ok {
			return m, true
		}
	}
	return reg.Get(types.Location(ref))
}
