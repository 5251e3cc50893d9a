// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a slog.Logger backed by a charmbracelet/log handler
// writing to w. charmbracelet levels share slog's numeric values.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "dynapk",
		Level:           log.Level(level),
		ReportTimestamp: level <= slog.LevelDebug,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(handler)
}
