// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/CtripMobile/DynamicAPK/internal/config"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

type (
	// App wires the CLI's shared dependencies. Command handlers receive it
	// and reach configuration and output only through it.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		flags  globalFlags
		cfg    *config.Config
		cfgErr error
		logger *slog.Logger
	}

	// Dependencies are the injection points for NewApp. Nil fields get
	// production defaults.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}

	globalFlags struct {
		verbose    bool
		configPath string
		logLevel   string
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	return &App{
		Config: deps.Config,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// init loads the configuration and sets up logging. A configuration that
// fails to load is remembered rather than returned so that commands which
// do not need it, such as config init, still run.
func (a *App) init(ctx context.Context) error {
	level, err := a.logLevel()
	if err != nil {
		return err
	}
	a.logger = newLogger(a.stderr, level)

	a.cfg, a.cfgErr = a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: types.FilesystemPath(a.flags.configPath),
	})
	if a.cfgErr != nil {
		a.logger.Debug("configuration not loaded", "error", a.cfgErr)
		return nil
	}
	if a.flags.logLevel == "" && !a.flags.verbose {
		a.logger = newLogger(a.stderr, a.cfg.Log.Level.Slog())
	}
	return nil
}

// logLevel resolves the level from the command line; --verbose wins over
// --log-level.
func (a *App) logLevel() (slog.Level, error) {
	if a.flags.verbose {
		return slog.LevelDebug, nil
	}
	if a.flags.logLevel == "" {
		return slog.LevelInfo, nil
	}
	lvl := config.LogLevel(a.flags.logLevel)
	if err := lvl.Validate(); err != nil {
		return 0, err
	}
	return lvl.Slog(), nil
}

// config returns the configuration loaded by init.
func (a *App) config() (*config.Config, error) {
	if a.cfgErr != nil {
		return nil, a.cfgErr
	}
	if a.cfg == nil {
		return config.DefaultConfig(), nil
	}
	return a.cfg, nil
}
