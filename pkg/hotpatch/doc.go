// SPDX-License-Identifier: MPL-2.0

// Package hotpatch stores named, versioned single-file patches and splices
// them into the host search path ahead of everything else.
//
// Each patch lives in <root>/<base>_<version>/payload.bin. Versions come
// from one counter shared by all patch names: installing "x" and then "y"
// gives them versions 1 and 2. Reinstalling a base name replaces the
// previous patch of that name.
package hotpatch
