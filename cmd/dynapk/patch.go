// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CtripMobile/DynamicAPK/pkg/storage"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

func newPatchCommand(app *App) *cobra.Command {
	patchCmd := &cobra.Command{
		Use:   "patch",
		Short: "Manage hot patches",
		Long: `Manage hot patches.

A hot patch is a payload placed in front of the whole search path. At most
one patch is kept per base name: installing "payfix" or "payfix_rst"
replaces any earlier "payfix". Patch versions come from one counter shared
by all names, so the newest patch always wins.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var format string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored hot patches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(runPatchList(app, OutputFormat(format)))
		},
	}
	listCmd.Flags().StringVarP(&format, "output", "o", string(OutputText), "output format: text, json or toml")

	patchCmd.AddCommand(
		&cobra.Command{
			Use:   "install <name> <payload>",
			Short: "Store and apply a hot patch",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withIssue(runPatchInstall(cmd.Context(), app, types.PatchName(args[0]), args[1]))
			},
		},
		listCmd,
		&cobra.Command{
			Use:   "purge",
			Short: "Delete every stored hot patch",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withIssue(runPatchPurge(app))
			},
		},
	)
	return patchCmd
}

func runPatchInstall(_ context.Context, app *App, name types.PatchName, payloadPath string) error {
	s, err := app.openSession()
	if err != nil {
		return err
	}

	f, err := os.Open(payloadPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ok, err := s.patches.Install(name, f)
	if !ok {
		if errors.Is(err, storage.ErrInvalidPayload) {
			fmt.Fprintf(app.stderr, "%s %s was stored but cannot be applied\n", WarningStyle.Render("!"), name)
		}
		return err
	}

	entries := s.patches.Entries()
	fmt.Fprintf(app.stdout, "%s Applied hot patch %s\n", SuccessStyle.Render("✓"), entries[0].ID)
	return nil
}

func runPatchList(app *App, format OutputFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	s, err := app.openSession()
	if err != nil {
		return err
	}

	entries := s.patches.Entries()
	if format != OutputText {
		list := patchList{Patches: make([]patchView, 0, len(entries))}
		for _, e := range entries {
			list.Patches = append(list.Patches, patchView{ID: e.ID, Name: e.BaseName, Version: e.Version, Payload: e.PayloadPath})
		}
		return writeStructured(app.stdout, format, list)
	}

	if len(entries) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("(no hot patches stored)"))
		return nil
	}
	fmt.Fprintln(app.stdout, TitleStyle.Render("Hot patches"))
	for _, e := range entries {
		state := SuccessStyle.Render("valid")
		if err := storage.ValidatePayload(e.PayloadPath); err != nil {
			state = ErrorStyle.Render("invalid")
		}
		fmt.Fprintf(app.stdout, "  %-30s v%-4d %s\n", e.BaseName, e.Version, state)
	}
	return nil
}

func runPatchPurge(app *App) error {
	s, err := app.openSession()
	if err != nil {
		return err
	}
	n := len(s.patches.Entries())
	if err := s.patches.Purge(); err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s Purged %d hot patch(es)\n", SuccessStyle.Render("✓"), n)
	return nil
}
