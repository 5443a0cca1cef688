//go:build !windows

package fileutil

import "testing"

// assertOwnerOnlyWindows is a no-op on Unix. Permission checks go through
// the shared assertOwnerOnly using standard mode bits.
func assertOwnerOnlyWindows(t *testing.T, _ string) {
	t.Helper()
}
