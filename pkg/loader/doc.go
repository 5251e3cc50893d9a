// SPDX-License-Identifier: MPL-2.0

// Package loader splices code artifacts into a host runtime's search path.
//
// Hosts differ between generations in how the search path can be extended.
// Each generation gets a CodeLoadAdapter, and a Table maps host version
// ranges to adapters. Adapters discover what a host can do by asserting the
// capability interfaces declared here, never by inspecting host internals.
//
// Resolution is first match wins, so insertion order decides collisions:
// prepended artifacts shadow existing code (hot patches), appended artifacts
// are shadowed by it (regular modules).
package loader
