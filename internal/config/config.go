// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/CtripMobile/DynamicAPK/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "dynapk"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "DYNAPK"
	// ConfigFileName is the name of the config file without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
)

// ConfigDir returns os.UserConfigDir()/dynapk.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

func configDirWithOverride(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return ConfigDir()
}

// newViper returns a Viper instance carrying the defaults and environment
// bindings.
func newViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("base_dir", string(d.BaseDir))
	v.SetDefault("storage_location", string(d.StorageLocation))
	v.SetDefault("patch_location", string(d.PatchLocation))
	v.SetDefault("fresh_init", d.FreshInit)
	v.SetDefault("welcome_fallback", d.WelcomeFallback)
	v.SetDefault("host.version", string(d.Host.Version))
	v.SetDefault("host.resources", d.Host.Resources)
	v.SetDefault("seed.container", d.Seed.Container)
	v.SetDefault("seed.prefix", d.Seed.Prefix)
	v.SetDefault("seed.suffix", d.Seed.Suffix)
	v.SetDefault("seed.build_key", d.Seed.BuildKey)
	v.SetDefault("inbox.dir", d.Inbox.Dir)
	v.SetDefault("inbox.debounce", d.Inbox.Debounce)
	v.SetDefault("metrics.host", d.Metrics.Host)
	v.SetDefault("metrics.port", int(d.Metrics.Port))
	v.SetDefault("log.level", string(d.Log.Level))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadWithOptions resolves the config file, validates it and decodes the
// merged defaults, file and environment into a Config.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()
	resolved, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if resolved != "" {
		if err := loadCUEIntoViper(v, resolved); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolved).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the values match the configuration schema").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolved).
			WithSuggestion("Check DYNAPK_* environment overrides").
			WithSuggestion("Run 'dynapk config show' to see the effective configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return &cfg, resolved, nil
}

// resolveConfigFile returns the file to load, or "" when none exists. An
// explicit path that does not exist is an error.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		path := string(opts.ConfigFilePath)
		if !fileExists(path) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'dynapk config init' to write a default file").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", path)).
				BuildError()
		}
		return path, nil
	}

	dir, err := configDirWithOverride(string(opts.ConfigDirPath))
	if err != nil {
		return "", err
	}
	name := ConfigFileName + "." + ConfigFileExt
	for _, candidate := range []string{filepath.Join(dir, name), name} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to config.cue in dir
// (the user config directory when empty) unless the file exists. It
// returns the file path.
func CreateDefaultConfig(dir string) (string, error) {
	dir, err := configDirWithOverride(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if fileExists(path) {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("write config file: %w", err)
	}
	return path, nil
}

// GenerateCUE renders cfg as a config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// dynapk configuration\n\n")
	fmt.Fprintf(&sb, "base_dir:         %q\n", cfg.BaseDir)
	fmt.Fprintf(&sb, "storage_location: %q\n", cfg.StorageLocation)
	fmt.Fprintf(&sb, "patch_location:   %q\n", cfg.PatchLocation)
	fmt.Fprintf(&sb, "fresh_init:       %v\n", cfg.FreshInit)
	if cfg.WelcomeFallback != "" {
		fmt.Fprintf(&sb, "welcome_fallback: %q\n", cfg.WelcomeFallback)
	}

	sb.WriteString("\nhost: {\n")
	fmt.Fprintf(&sb, "\tversion: %q\n", cfg.Host.Version)
	sb.WriteString("\tresources: [")
	for i, r := range cfg.Host.Resources {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", r)
	}
	sb.WriteString("]\n}\n")

	sb.WriteString("\nseed: {\n")
	fmt.Fprintf(&sb, "\tcontainer: %q\n", cfg.Seed.Container)
	fmt.Fprintf(&sb, "\tprefix:    %q\n", cfg.Seed.Prefix)
	fmt.Fprintf(&sb, "\tsuffix:    %q\n", cfg.Seed.Suffix)
	fmt.Fprintf(&sb, "\tbuild_key: %q\n", cfg.Seed.BuildKey)
	sb.WriteString("}\n")

	sb.WriteString("\ninbox: {\n")
	fmt.Fprintf(&sb, "\tdir:      %q\n", cfg.Inbox.Dir)
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Inbox.Debounce.String())
	sb.WriteString("}\n")

	sb.WriteString("\nmetrics: {\n")
	fmt.Fprintf(&sb, "\thost: %q\n", cfg.Metrics.Host)
	fmt.Fprintf(&sb, "\tport: %d\n", cfg.Metrics.Port)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel: %q\n", cfg.Log.Level)
	sb.WriteString("}\n")

	return sb.String()
}
