package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/redefine/internal/types"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, types.HotClassMarker, cfg.Engine.HotMarker)
	assert.False(t, cfg.Engine.HierarchyGate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultWatchDebounceMs, cfg.Watch.DebounceMs)
	assert.Equal(t, []string{"**/*.class"}, cfg.Watch.Include)
	assert.Empty(t, cfg.Loaders)
}

func TestParseKDL_AllSections(t *testing.T) {
	kdlContent := `
project {
    name "shop"
}
engine {
    hot_marker "$reload"
    hierarchy_gate true
    fingerprint_cache_size 64
}
loader "app" {
    classpath "build/classes/java/main" "build/classes/kotlin/main"
    jar "lib/util.jar"
    exclude "**/generated/**"
}
loader "plugin" {
    classpath {
        "plugins/a"
        "plugins/b"
    }
}
logging {
    level "DEBUG"
    format "json"
    file "redefine.log"
}
watch {
    debounce_ms 500
    include "**/*.class"
    include "**/*.jar"
    exclude "**/tmp/**"
}
`
	cfg, err := parseKDL(kdlContent)
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Project.Name)
	assert.Equal(t, Engine{HotMarker: "$reload", HierarchyGate: true, FingerprintCacheSize: 64}, cfg.Engine)

	require.Len(t, cfg.Loaders, 2)
	assert.Equal(t, LoaderSpec{
		ID:        "app",
		Classpath: []string{"build/classes/java/main", "build/classes/kotlin/main"},
		Jars:      []string{"lib/util.jar"},
		Exclude:   []string{"**/generated/**"},
	}, cfg.Loaders[0])
	assert.Equal(t, []string{"plugins/a", "plugins/b"}, cfg.Loaders[1].Classpath)

	assert.Equal(t, Logging{Level: "debug", Format: "json", File: "redefine.log"}, cfg.Logging)

	assert.Equal(t, 500, cfg.Watch.DebounceMs)
	assert.Equal(t, []string{"**/*.class", "**/*.jar"}, cfg.Watch.Include)
	assert.Contains(t, cfg.Watch.Exclude, "**/tmp/**")
	assert.Contains(t, cfg.Watch.Exclude, "**/META-INF/**", "default exclusions are kept")
}

func TestParseKDL_LoaderRequiresID(t *testing.T) {
	_, err := parseKDL(`loader { classpath "out" }`)
	assert.Error(t, err)
}

func TestParseKDL_Malformed(t *testing.T) {
	_, err := parseKDL(`engine {`)
	assert.Error(t, err)
}

func TestLoadKDL_MissingFile(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDL_RelativeRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, KDLFileName), []byte(`project { root "sub" }`), 0o644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub"), cfg.Project.Root)
}
