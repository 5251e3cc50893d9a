// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// Log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level written to the log.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects the field errors of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// BaseDir holds the storage root, the patch root and the build key.
		BaseDir types.FilesystemPath `json:"base_dir" mapstructure:"base_dir" toml:"base_dir"`
		// StorageLocation is the module storage root, relative to BaseDir
		// unless absolute.
		StorageLocation types.FilesystemPath `json:"storage_location" mapstructure:"storage_location" toml:"storage_location"`
		// PatchLocation is the hot patch root, relative to BaseDir unless
		// absolute.
		PatchLocation types.FilesystemPath `json:"patch_location" mapstructure:"patch_location" toml:"patch_location"`
		// FreshInit wipes module storage at startup.
		FreshInit bool `json:"fresh_init" mapstructure:"fresh_init" toml:"fresh_init"`
		// WelcomeFallback is the entry symbol started when a requested one
		// cannot be resolved.
		WelcomeFallback string        `json:"welcome_fallback" mapstructure:"welcome_fallback" toml:"welcome_fallback"`
		Host            HostConfig    `json:"host" mapstructure:"host" toml:"host"`
		Seed            SeedConfig    `json:"seed" mapstructure:"seed" toml:"seed"`
		Inbox           InboxConfig   `json:"inbox" mapstructure:"inbox" toml:"inbox"`
		Metrics         MetricsConfig `json:"metrics" mapstructure:"metrics" toml:"metrics"`
		Log             LogConfig     `json:"log" mapstructure:"log" toml:"log"`
	}

	// HostConfig describes the host runtime.
	HostConfig struct {
		// Version selects the code loading adapter.
		Version types.HostVersion `json:"version" mapstructure:"version" toml:"version"`
		// Resources are the host's own code and resource containers, in
		// search order.
		Resources []string `json:"resources" mapstructure:"resources" toml:"resources"`
	}

	// SeedConfig describes module payloads bundled inside a host container.
	SeedConfig struct {
		// Container is the host container to seed from. Seeding is off when
		// empty.
		Container string `json:"container" mapstructure:"container" toml:"container"`
		Prefix    string `json:"prefix" mapstructure:"prefix" toml:"prefix"`
		Suffix    string `json:"suffix" mapstructure:"suffix" toml:"suffix"`
		// BuildKey identifies the host build; a change wipes module storage.
		BuildKey string `json:"build_key" mapstructure:"build_key" toml:"build_key"`
	}

	// InboxConfig describes the drop directory watched by serve.
	InboxConfig struct {
		// Dir is watched for new payloads. Watching is off when empty.
		Dir      string        `json:"dir" mapstructure:"dir" toml:"dir"`
		Debounce time.Duration `json:"debounce" mapstructure:"debounce" toml:"debounce"`
	}

	// MetricsConfig configures the /metrics listener of serve.
	MetricsConfig struct {
		Host string           `json:"host" mapstructure:"host" toml:"host"`
		Port types.ListenPort `json:"port" mapstructure:"port" toml:"port"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level LogLevel `json:"level" mapstructure:"level" toml:"level"`
	}
)

// DefaultBaseDir returns ~/.dynapk, or .dynapk in the working directory
// when the home directory is unknown.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dynapk"
	}
	return filepath.Join(home, ".dynapk")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:         types.FilesystemPath(DefaultBaseDir()),
		StorageLocation: "storage",
		PatchLocation:   "patches",
		Host: HostConfig{
			Version:   "v23",
			Resources: []string{},
		},
		Seed: SeedConfig{
			Prefix: "assets/baseres/",
			Suffix: ".so",
		},
		Inbox: InboxConfig{
			Debounce: 500 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Host: "127.0.0.1",
			Port: 9464,
		},
		Log: LogConfig{Level: LogLevelInfo},
	}
}

// ResolvePath joins a relative location onto BaseDir.
func (c *Config) ResolvePath(location types.FilesystemPath) string {
	return location.Under(c.BaseDir).String()
}

// StorageRoot returns the absolute or BaseDir-relative module storage root.
func (c *Config) StorageRoot() string { return c.ResolvePath(c.StorageLocation) }

// PatchRoot returns the hot patch root.
func (c *Config) PatchRoot() string { return c.ResolvePath(c.PatchLocation) }

// Validate returns an *InvalidConfigError listing every invalid field.
func (c Config) Validate() error {
	var errs []error
	for _, p := range []types.FilesystemPath{c.BaseDir, c.StorageLocation, c.PatchLocation} {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Host.Version.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Metrics.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Level.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Inbox.Debounce < 0 {
		errs = append(errs, fmt.Errorf("inbox.debounce %s: must not be negative", c.Inbox.Debounce))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns an error if the LogLevel is not recognized.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Slog maps the level onto slog. Unknown levels map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }
