// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPrepareCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Prepare all modules and print the resulting search path",
		Long: `Prepare every installed module, apply stored hot patches and print the
host search path in resolution order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(runPrepare(cmd.Context(), app))
		},
	}
}

func runPrepare(ctx context.Context, app *App) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	patched := s.activate(ctx)

	mods := s.registry.List()
	fmt.Fprintf(app.stdout, "%s %d module(s), %d hot patch(es) applied\n",
		SuccessStyle.Render("✓"), len(mods), patched)
	for _, m := range mods {
		fmt.Fprintf(app.stdout, "  %-40s %s\n", m.Location(), renderState(m.State().String()))
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Search path"))
	path := s.host.SearchPath()
	if len(path) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("  (empty)"))
	}
	for i, p := range path {
		fmt.Fprintf(app.stdout, "  %2d  %s\n", i+1, p)
	}
	return nil
}

func newResolveCommand(app *App) *cobra.Command {
	var resource bool
	cmd := &cobra.Command{
		Use:   "resolve <symbol>",
		Short: "Show which artifact a symbol resolves to",
		Long: `Show which artifact on the search path defines a symbol.

With --resource the argument is a resource name and the lookup goes
through the merged resource view instead: host containers first, then
module payloads.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIssue(runResolve(cmd.Context(), app, args[0], resource))
		},
	}
	cmd.Flags().BoolVar(&resource, "resource", false, "resolve a resource name instead of a symbol")
	return cmd
}

func runResolve(ctx context.Context, app *App, name string, resource bool) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	s.activate(ctx)

	if resource {
		rc, owner, err := s.registry.Resources().Open(name)
		if err != nil {
			return err
		}
		_ = rc.Close()
		fmt.Fprintf(app.stdout, "%s %s\n", KeyStyle.Render(name), owner)
		return nil
	}

	res, err := s.host.ResolveEntry(name)
	if err != nil {
		return err
	}
	if res.Fallback {
		fmt.Fprintf(app.stdout, "%s %s not found, falling back to %s\n", WarningStyle.Render("!"), name, res.Symbol)
	}
	fmt.Fprintf(app.stdout, "%s %s\n", KeyStyle.Render(res.Symbol), res.Artifact)
	return nil
}
