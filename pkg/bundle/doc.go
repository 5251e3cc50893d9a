// SPDX-License-Identifier: MPL-2.0

// Package bundle binds a module identity (numeric id and location key) to
// its revision archive.
//
// A Module serializes its own mutations: concurrent updates to one module
// apply in lock order and never share a revision number, while different
// modules proceed independently.
package bundle
