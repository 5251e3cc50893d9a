// SPDX-License-Identifier: MPL-2.0

// Package types holds the small validated value types shared by the storage,
// registry, loader and hot-patch packages.
//
// Types that can hold an invalid value expose Validate() returning a typed
// *Invalid...Error that unwraps to a package-level sentinel.
package types
