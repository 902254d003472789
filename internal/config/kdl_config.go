package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from the .redefine.kdl file in dir
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, KDLFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", KDLFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}
	if cfg.Project.Root != "" && !filepath.IsAbs(cfg.Project.Root) {
		cfg.Project.Root = filepath.Clean(filepath.Join(dir, cfg.Project.Root))
	}
	return cfg, nil
}

// parseKDL reads a config of the form
//
//	engine { hot_marker "$hot"; hierarchy_gate false; fingerprint_cache_size 1024 }
//	loader "app" { classpath "build/classes/**"; jar "lib/dep.jar" }
//	logging { level "info"; format "json"; file "redefine.log" }
//	watch { debounce_ms 250; include "**/*.class"; exclude "**/gen/**" }
func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if v, ok := firstIntArg(n); ok {
				cfg.Version = v
			}
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "engine":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "hot_marker":
					if s, ok := firstStringArg(cn); ok {
						cfg.Engine.HotMarker = s
					}
				case "hierarchy_gate":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Engine.HierarchyGate = b
					}
				case "fingerprint_cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Engine.FingerprintCacheSize = v
					}
				default:
					log.Printf("WARNING: unknown engine setting '%s' in KDL config", nodeName(cn))
				}
			}
		case "loader":
			id, ok := firstStringArg(n)
			if !ok {
				return nil, fmt.Errorf("loader node requires an id argument")
			}
			spec := LoaderSpec{ID: id}
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "classpath":
					spec.Classpath = append(spec.Classpath, collectStringArgs(cn)...)
				case "jar":
					spec.Jars = append(spec.Jars, collectStringArgs(cn)...)
				case "exclude":
					spec.Exclude = append(spec.Exclude, collectStringArgs(cn)...)
				}
			}
			cfg.Loaders = append(cfg.Loaders, spec)
		case "logging":
			for _, cn := range n.Children {
				assignSimpleString(cn, "level", func(v string) { cfg.Logging.Level = strings.ToLower(v) })
				assignSimpleString(cn, "format", func(v string) { cfg.Logging.Format = strings.ToLower(v) })
				assignSimpleString(cn, "file", func(v string) { cfg.Logging.File = v })
			}
		case "watch":
			includeSet := false
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				case "include":
					// An explicit include list replaces the default one.
					if !includeSet {
						cfg.Watch.Include = nil
						includeSet = true
					}
					cfg.Watch.Include = append(cfg.Watch.Include, collectStringArgs(cn)...)
				case "exclude":
					cfg.Watch.Exclude = append(cfg.Watch.Exclude, collectStringArgs(cn)...)
				}
			}
		}
	}

	cfg.Watch.Exclude = DeduplicatePatterns(cfg.Watch.Exclude)
	return cfg, nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		log.Printf("WARNING: invalid integer value for '%s' in KDL config, got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs accepts both the inline form (classpath "a" "b") and
// the block form (classpath { "a"; "b" }).
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				// In block form the node name itself is the value
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
