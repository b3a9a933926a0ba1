// Package fs provides utilities for working with directory trees on the OS's filesystem.
package fs

import (
	"os"
)

// DirExists checks whether a directory (not a file) exists at dirPath.
func DirExists(dirPath string) bool {
	info, err := os.Stat(dirPath)
	return err == nil && info.IsDir()
}

// EnsureExists makes the directory at dirPath, along with any missing parents. It's not an error if
// the directory already exists.
func EnsureExists(dirPath string) error {
	const perm = 0o755 // owner rwx, group rx, public rx
	return os.MkdirAll(dirPath, perm)
}
