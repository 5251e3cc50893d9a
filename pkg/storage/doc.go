// SPDX-License-Identifier: MPL-2.0

// Package storage implements the on-disk layout of installed modules.
//
// A storage root holds a module id counter and one directory per module:
//
//	<root>/meta                          next module id (int64, big-endian)
//	<root>/<id>/meta                     module id + location
//	<root>/<id>/version_<n>/meta         revision source tag
//	<root>/<id>/version_<n>/payload.bin  module payload (ZIP container)
//	<root>/<id>/version_<n>/payload.opt  prepared marker
//
// Metadata records use the length-prefixed encoding of java.io.DataOutput
// so that roots written by older hosts stay readable.
package storage
