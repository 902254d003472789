package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/types"
)

// Config file names looked up in the project root and the home directory.
const (
	KDLFileName  = ".redefine.kdl"
	TOMLFileName = ".redefine.toml"
)

// DefaultWatchDebounceMs is the quiet period before a burst of class file
// changes is turned into one batch.
const DefaultWatchDebounceMs = 250

type Config struct {
	Version int          `toml:"version"`
	Project Project      `toml:"project"`
	Engine  Engine       `toml:"engine"`
	Loaders []LoaderSpec `toml:"loader"`
	Logging Logging      `toml:"logging"`
	Watch   Watch        `toml:"watch"`
}

type Project struct {
	Root string `toml:"root"`
	Name string `toml:"name"`
}

// Engine tunes matching and naming.
type Engine struct {
	HotMarker            string `toml:"hot_marker"`
	HierarchyGate        bool   `toml:"hierarchy_gate"`
	FingerprintCacheSize int    `toml:"fingerprint_cache_size"`
}

// LoaderSpec describes where the class files of one loader live.
// Classpath entries are doublestar globs of directories, relative to the
// project root unless absolute.
type LoaderSpec struct {
	ID        string   `toml:"id"`
	Classpath []string `toml:"classpath"`
	Jars      []string `toml:"jar"`
	Exclude   []string `toml:"exclude"`
}

type Logging struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
	File   string `toml:"file"`   // empty for stderr
}

// Watch configures the class output watcher.
type Watch struct {
	DebounceMs int      `toml:"debounce_ms"`
	Include    []string `toml:"include"`
	Exclude    []string `toml:"exclude"`
}

// Loader returns the spec registered for id.
func (c *Config) Loader(id types.LoaderID) (LoaderSpec, bool) {
	for _, l := range c.Loaders {
		if types.LoaderID(l.ID) == id {
			return l, true
		}
	}
	return LoaderSpec{}, false
}

// LoaderIDs returns the configured loaders in declaration order.
func (c *Config) LoaderIDs() []types.LoaderID {
	ids := make([]types.LoaderID, 0, len(c.Loaders))
	for _, l := range c.Loaders {
		ids = append(ids, types.LoaderID(l.ID))
	}
	return ids
}

// ResolvePath makes p absolute against the project root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Project.Root, p)
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads path when given, otherwise the project config found in
// rootDir, layered over the global config in the home directory. Without
// any config file the defaults are returned.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	if path != "" {
		cfg, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return finish(cfg, filepath.Dir(path))
	}

	// Step 1: global base config from the home directory (if any)
	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := loadDir(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: project config
	projectConfig, err := loadDir(searchDir)
	if err != nil {
		return nil, err
	}

	// Step 3: project overrides base, loaders and exclusions accumulate
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		cfg = baseConfig
		cfg.Project.Root = ""
	default:
		cfg = Default()
	}
	return finish(cfg, searchDir)
}

// LoadFile parses a single config file, picking the format by extension.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return parseTOML(content)
	}
	return parseKDL(string(content))
}

// loadDir returns the config of dir, nil when it has none. KDL wins over
// TOML when both exist.
func loadDir(dir string) (*Config, error) {
	if cfg, err := LoadKDL(dir); err != nil || cfg != nil {
		return cfg, err
	}
	return LoadTOML(dir)
}

// finish anchors the project root at dir, fills in detected class output
// directories and validates.
func finish(cfg *Config, dir string) (*Config, error) {
	if cfg.Project.Root == "" {
		cfg.Project.Root = dir
	} else if !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Join(dir, cfg.Project.Root)
	}
	if abs, err := filepath.Abs(cfg.Project.Root); err == nil {
		cfg.Project.Root = abs
	}
	cfg.Project.Root = filepath.Clean(cfg.Project.Root)

	cfg.EnrichClasspathWithBuildOutputs()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Version: 1,
		Engine: Engine{
			HotMarker:            types.HotClassMarker,
			FingerprintCacheSize: fingerprint.DefaultMemoSize,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Watch: Watch{
			DebounceMs: DefaultWatchDebounceMs,
			Include:    []string{"**/*" + types.ClassFileSuffix},
			Exclude: []string{
				"**/.git/**",
				"**/META-INF/**",
				"**/module-info.class",
				"**/package-info.class",
			},
		},
	}
}

// mergeConfigs layers project over base. Loaders are merged by id with the
// project entry winning; watch exclusions from both are kept.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	byID := make(map[string]int, len(project.Loaders))
	merged.Loaders = append([]LoaderSpec(nil), project.Loaders...)
	for i, l := range merged.Loaders {
		byID[l.ID] = i
	}
	for _, l := range base.Loaders {
		if _, ok := byID[l.ID]; !ok {
			merged.Loaders = append(merged.Loaders, l)
		}
	}

	merged.Watch.Exclude = DeduplicatePatterns(append(append([]string(nil), base.Watch.Exclude...), project.Watch.Exclude...))
	if len(project.Watch.Include) == 0 {
		merged.Watch.Include = base.Watch.Include
	}
	if project.Logging.File == "" {
		merged.Logging.File = base.Logging.File
	}
	return &merged
}

// EnrichClasspathWithBuildOutputs gives every loader without a classpath
// the class output directories detected under the project root.
func (c *Config) EnrichClasspathWithBuildOutputs() {
	if c.Project.Root == "" {
		return
	}
	var detected []string
	for i := range c.Loaders {
		if len(c.Loaders[i].Classpath) > 0 || len(c.Loaders[i].Jars) > 0 {
			continue
		}
		if detected == nil {
			detected = NewBuildArtifactDetector(c.Project.Root).DetectClassOutputs()
		}
		c.Loaders[i].Classpath = append([]string(nil), detected...)
	}
}
