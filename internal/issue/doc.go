// SPDX-License-Identifier: MPL-2.0

// Package issue turns failures into messages a host operator can act on.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. The issue catalog holds longer Markdown help for known
// failure classes, rendered with glamour.
package issue
