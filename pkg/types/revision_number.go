// SPDX-License-Identifier: MPL-2.0

package types

import "strconv"

// RevisionNumber numbers the revisions inside one module archive. Revision
// numbers start at 1; zero is the floor a fully purged archive settles at.
type RevisionNumber uint64

// String returns the decimal string representation of the RevisionNumber.
func (n RevisionNumber) String() string { return strconv.FormatUint(uint64(n), 10) }

// Prev returns n-1, clamped at zero.
func (n RevisionNumber) Prev() RevisionNumber {
	if n == 0 {
		return 0
	}
	return n - 1
}
