// SPDX-License-Identifier: MPL-2.0

// Package config loads dynapk configuration using Viper with CUE as the file
// format.
//
// The file is read from an explicit path, from config.cue in the user
// config directory (os.UserConfigDir()/dynapk), or from config.cue in the
// working directory, in that order. Every key can be overridden from the
// environment with a DYNAPK_ prefix, dots replaced by underscores
// (DYNAPK_METRICS_PORT). Files are validated against the embedded
// config_schema.cue before they reach Viper.
package config
