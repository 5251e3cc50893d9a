// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CtripMobile/DynamicAPK/internal/config"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dynapk configuration",
		Long: `Manage dynapk configuration.

Configuration is read from config.cue in the user config directory:
  - Linux: ~/.config/dynapk/config.cue
  - macOS: ~/Library/Application Support/dynapk/config.cue
  - Windows: %APPDATA%\dynapk\config.cue

Every key can be overridden with a DYNAPK_ environment variable, for
example DYNAPK_HOST_VERSION=v21.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(showConfig(cmd.Context(), app, OutputFormat(format)))
		},
	}
	showCmd.Flags().StringVarP(&format, "output", "o", string(OutputText), "output format: text, json or toml")

	var dir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(initConfig(app, dir))
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "", "directory to write config.cue into (default is the user config directory)")

	cfgCmd.AddCommand(showCmd, initCmd)
	return cfgCmd
}

func showConfig(_ context.Context, app *App, format OutputFormat) error {
	if err := format.Validate(); err != nil {
		return err
	}
	cfg, err := app.config()
	if err != nil {
		return err
	}
	if format != OutputText {
		return writeStructured(app.stdout, format, cfg)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	rows := []struct{ key, value string }{
		{"base_dir", string(cfg.BaseDir)},
		{"storage root", cfg.StorageRoot()},
		{"patch root", cfg.PatchRoot()},
		{"fresh_init", fmt.Sprint(cfg.FreshInit)},
		{"welcome_fallback", cfg.WelcomeFallback},
		{"host.version", string(cfg.Host.Version)},
		{"host.resources", strings.Join(cfg.Host.Resources, ", ")},
		{"seed.container", cfg.Seed.Container},
		{"seed.build_key", cfg.Seed.BuildKey},
		{"inbox.dir", cfg.Inbox.Dir},
		{"inbox.debounce", cfg.Inbox.Debounce.String()},
		{"metrics", cfg.Metrics.Host + ":" + cfg.Metrics.Port.String()},
		{"log.level", cfg.Log.Level.String()},
	}
	for _, r := range rows {
		value := SuccessStyle.Render(r.value)
		if r.value == "" {
			value = SubtitleStyle.Render("(not set)")
		}
		fmt.Fprintf(app.stdout, "%s: %s\n", KeyStyle.Render(r.key), value)
	}
	return nil
}

func initConfig(app *App, dir string) error {
	if dir != "" {
		if err := types.FilesystemPath(dir).Validate(); err != nil {
			return err
		}
	}
	path, err := config.CreateDefaultConfig(dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.stdout, "%s Configuration file at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}
