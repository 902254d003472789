// Package pathutil converts between the absolute paths used internally and
// the relative paths shown to users.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Falls back to the original path if conversion fails, the path is already
// relative or it lies outside root.
//
// Examples:
//   - ToRelative("/home/user/project/classes/app/Main.class", "/home/user/project") → "classes/app/Main.class"
//   - ToRelative("/other/location/Main.class", "/home/user/project") → "/other/location/Main.class"
//   - ToRelative("classes/app/Main.class", "/home/user/project") → "classes/app/Main.class"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		// e.g. different drives on Windows
		return absPath
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}
	return relPath
}

// ToRelativeAll converts every path in paths. The input is not modified.
func ToRelativeAll(paths []string, rootDir string) []string {
	if len(paths) == 0 {
		return paths
	}
	converted := make([]string, len(paths))
	for i, p := range paths {
		converted[i] = ToRelative(p, rootDir)
	}
	return converted
}
