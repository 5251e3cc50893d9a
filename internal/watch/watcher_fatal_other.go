// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package watch

func isFatalFsnotifyError(error) bool { return false }
