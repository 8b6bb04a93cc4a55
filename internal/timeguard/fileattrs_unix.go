//go:build !windows

package timeguard

import "os"

// clearFileAttributes makes an existing state file writable again. On unix
// the only attribute that can block a rewrite is the file mode.
func clearFileAttributes(path string) error {
	return os.Chmod(path, stateFileMode)
}

// hideFile is a no-op on unix; the dot-prefixed file name already follows
// the platform's hiding convention.
func hideFile(string) error { return nil }
