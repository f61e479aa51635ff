// Package pathutil canonicalizes filesystem paths so every other component
// operates on one consistent representation: absolute, cleaned, and on
// Windows extended with the long-path prefix.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize returns the canonical absolute form of path. On Windows the
// result carries the \\?\ long-path prefix (UNC shares become \\?\UNC\...);
// elsewhere it is the cleaned absolute path.
func Normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return platformNormalize(filepath.Clean(abs)), nil
}

// StripPrefix removes any long-path decoration, yielding a path suitable for
// display and for relative-path computation.
func StripPrefix(path string) string {
	return platformStrip(path)
}

// ToRelative converts path to its root-relative, forward-slash form with
// trailing separators trimmed. This is the key used in the state log and the
// aggregate hash. Paths outside root are returned in slash form unchanged.
func ToRelative(root, path string) string {
	root = StripPrefix(root)
	path = StripPrefix(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return TrimTrailing(filepath.ToSlash(path))
	}
	return TrimTrailing(filepath.ToSlash(rel))
}

// TrimTrailing removes trailing path separators of either flavor.
func TrimTrailing(path string) string {
	return strings.TrimRight(path, `/\`)
}
