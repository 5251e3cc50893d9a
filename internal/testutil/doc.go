// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by package tests: file helpers
// that fail the test on error, and ZIP payload builders.
package testutil
