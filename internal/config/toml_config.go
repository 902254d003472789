package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LoadTOML attempts to load configuration from the .redefine.toml file in dir
func LoadTOML(dir string) (*Config, error) {
	tomlPath := filepath.Join(dir, TOMLFileName)

	content, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", TOMLFileName, err)
	}

	cfg, err := parseTOML(content)
	if err != nil {
		return nil, err
	}
	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(dir, cfg.Project.Root))
	}
	return cfg, nil
}

// parseTOML decodes over the defaults, so absent keys keep their default
// value. Loaders are an array of tables:
//
//	[[loader]]
//	id = "app"
//	classpath = ["build/classes/**"]
func parseTOML(content []byte) (*Config, error) {
	cfg := Default()
	defaultInclude, defaultExclude := cfg.Watch.Include, cfg.Watch.Exclude
	cfg.Watch.Include, cfg.Watch.Exclude = nil, nil

	if err := toml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if cfg.Watch.Include == nil {
		cfg.Watch.Include = defaultInclude
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	// Exclusions add to the defaults, matching the KDL form
	cfg.Watch.Exclude = DeduplicatePatterns(append(defaultExclude, cfg.Watch.Exclude...))
	return cfg, nil
}
