package pathutil

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestToRelative(t *testing.T) {
	tests := []struct {
		name     string
		absPath  string
		rootDir  string
		expected string
	}{
		{
			name:     "simple relative path",
			absPath:  "/home/user/project/classes/app/Main.class",
			rootDir:  "/home/user/project",
			expected: "classes/app/Main.class",
		},
		{
			name:     "nested type",
			absPath:  "/home/user/project/build/classes/java/main/app/Outer$1.class",
			rootDir:  "/home/user/project",
			expected: "build/classes/java/main/app/Outer$1.class",
		},
		{
			name:     "same directory",
			absPath:  "/home/user/project",
			rootDir:  "/home/user/project",
			expected: ".",
		},
		{
			name:     "already relative path",
			absPath:  "classes/app/Main.class",
			rootDir:  "/home/user/project",
			expected: "classes/app/Main.class",
		},
		{
			name:     "path outside root - fallback to absolute",
			absPath:  "/other/location/Main.class",
			rootDir:  "/home/user/project",
			expected: "/other/location/Main.class",
		},
		{
			name:     "sibling sharing a dot prefix",
			absPath:  "/home/user/project/..cache/Main.class",
			rootDir:  "/home/user/project",
			expected: "..cache/Main.class",
		},
		{
			name:     "empty root directory",
			absPath:  "/home/user/project/Main.class",
			rootDir:  "",
			expected: "/home/user/project/Main.class",
		},
		{
			name:     "empty absolute path",
			absPath:  "",
			rootDir:  "/home/user/project",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS == "windows" {
				t.Skip("fixtures use unix paths")
			}
			if result := ToRelative(tt.absPath, tt.rootDir); result != tt.expected {
				t.Errorf("ToRelative() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestToRelativeAll(t *testing.T) {
	root := t.TempDir()
	input := []string{
		filepath.Join(root, "classes", "A.class"),
		"B.class",
	}

	got := ToRelativeAll(input, root)
	if got[0] != filepath.Join("classes", "A.class") || got[1] != "B.class" {
		t.Errorf("ToRelativeAll() = %v", got)
	}
	if input[0] != filepath.Join(root, "classes", "A.class") {
		t.Error("ToRelativeAll modified its input")
	}
	if len(ToRelativeAll(nil, root)) != 0 {
		t.Error("expected empty result for empty input")
	}
}
