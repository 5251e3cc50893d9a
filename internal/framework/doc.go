// SPDX-License-Identifier: MPL-2.0

// Package framework is the module registry of a host process.
//
// A Registry maps location keys to installed modules, hands out module ids,
// restores itself from the storage root on Startup and drives the batch
// prepare pass that splices every module into the host search path. The
// storage root is locked exclusively between Startup and Shutdown so that
// two processes never mutate it at once.
//
// Layout under the storage root:
//
//	meta                      next module id
//	<id>/meta                 module id and location
//	<id>/version_<n>/...      revisions, see package storage
//	.lock                     flock held while the registry runs
package framework
