// SPDX-License-Identifier: MPL-2.0

// Package host is an in-process host runtime for code artifacts stored as
// ZIP containers. It keeps an ordered search path, resolves symbols (entry
// names) first match wins, and implements every capability the loader
// adapters look for, so one Runtime can stand in for any host generation.
package host
