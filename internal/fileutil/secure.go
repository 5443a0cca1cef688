// Package fileutil writes the hook's on-disk state (rule documents, the
// staleness marker, config, history) with owner-only access on both Unix
// and Windows.
//
// On Unix the standard mode bits (0600, 0700) are enforced by the kernel.
// On Windows those bits are ignored, so a DACL restricting access to the
// current user is applied instead.
package fileutil
