package utils

import (
	"strings"
)

// GetExtension returns the extension of the given path without the leading dot.
// Returns an empty string if the path has no extension.
func GetExtension(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// HasExtension returns true if the given path ends with the given extension.
// The comparison is exact (case-sensitive) and covers the part after the last dot.
func HasExtension(path string, ext string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	return path[idx+1:] == ext
}

// ReplaceExtension returns the path with its extension replaced by newExt
// if the current extension equals oldExt. Otherwise the path is returned unchanged.
func ReplaceExtension(path string, oldExt string, newExt string) string {
	if !HasExtension(path, oldExt) {
		return path
	}

	idx := strings.LastIndex(path, ".")
	return path[:idx+1] + newExt
}
