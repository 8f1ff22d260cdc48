// Package security holds input checks shared by the config loader and the
// store.
package security

import (
	"fmt"
	"strings"
)

// ValidateFilePath rejects empty paths, embedded NUL bytes and paths that
// climb out of their directory with "..". Absolute paths are allowed.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains a NUL byte")
	}

	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("path contains directory traversal: %s", path)
		}
	}
	return nil
}
