// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dynapk",
		Short: "Install, update and hot patch loadable modules",
		Long: TitleStyle.Render("dynapk") + SubtitleStyle.Render(" - a hot-installable module framework") + `

dynapk keeps a versioned store of module payloads, splices them into a
host search path on demand and layers hot patches in front of everything
else.

` + SubtitleStyle.Render("Examples:") + `
  dynapk install com.example.pay pay.zip    Install a module payload
  dynapk list                               List installed modules
  dynapk patch install payfix fix.zip       Apply a hot patch
  dynapk resolve com.example.pay.Main       Show which artifact wins
  dynapk serve                              Watch the inbox and expose metrics`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output (debug logging)")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is <user config dir>/dynapk/config.cue)")
	flags.StringVar(&app.flags.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newUpdateCommand(app),
		newUninstallCommand(app),
		newListCommand(app),
		newInfoCommand(app),
		newPrepareCommand(app),
		newResolveCommand(app),
		newPatchCommand(app),
		newServeCommand(app),
		newConfigCommand(app),
	)
	return rootCmd
}

// Execute runs the CLI and exits the process on failure. It is called by
// main.main.
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		renderIssue(app.stderr, err)
		var svcErr *ServiceError
		if errors.As(err, &svcErr) && svcErr.ExitCode != 0 {
			os.Exit(svcErr.ExitCode)
		}
		os.Exit(1)
	}
}
