// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the dynapk CLI.
//
// Every command handler receives an *App, the composition root holding the
// configuration provider and output streams. Commands that touch module
// storage open a session, which wires the host runtime, the code injector,
// the module registry and the hot patch store from the loaded
// configuration, and close it before returning.
package cmd
