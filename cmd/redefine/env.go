package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/redefine/internal/config"
	"github.com/standardbeagle/redefine/internal/diagnostics"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/identity"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/runtime"
	"github.com/standardbeagle/redefine/internal/security"
	"github.com/standardbeagle/redefine/internal/types"
)

// environment is the engine wired to the configured loaders. The host
// registry stands in for the running program: it is populated from each
// loader's classpath and receives every redefinition.
type environment struct {
	cfg      *config.Config
	host     *runtime.Registry
	fetchers *loader.Registry
	engine   *redefine.Engine
	logger   *slog.Logger

	// classpath entries of each loader, in configured order
	dirs    map[types.LoaderID][]*loader.DirFetcher
	jars    map[types.LoaderID][]*loader.JarFetcher
	closers []io.Closer
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = abs
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if root != "" {
		cfg.Project.Root = root
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
		if err := config.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newEnvironment(c *cli.Context, sink diagnostics.Sink) (*environment, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:      cfg,
		host:     runtime.NewRegistry(),
		fetchers: loader.NewRegistry(),
		dirs:     make(map[types.LoaderID][]*loader.DirFetcher),
		jars:     make(map[types.LoaderID][]*loader.JarFetcher),
	}
	if env.logger, err = env.newLogger(c.App.ErrWriter); err != nil {
		return nil, err
	}
	if err := env.openLoaders(); err != nil {
		env.Close()
		return nil, err
	}

	memo, err := fingerprint.NewMemo(cfg.Engine.FingerprintCacheSize)
	if err != nil {
		env.Close()
		return nil, err
	}
	if sink == nil {
		sink = diagnostics.NewSlogSink(env.logger)
	}
	env.engine = redefine.New(identity.NewCache(),
		redefine.WithIndex(env.host),
		// Nested types missing from a batch come from the classpath, then
		// from what the host has loaded.
		redefine.WithFetcher(loader.Chain{env.fetchers, env.host}),
		redefine.WithSink(sink),
		redefine.WithMemo(memo),
		redefine.WithHierarchyGate(cfg.Engine.HierarchyGate),
		redefine.WithHotMarker(cfg.Engine.HotMarker),
	)
	env.host.OnDrop(env.engine.EvictLoader)
	return env, nil
}

func (env *environment) newLogger(stderr io.Writer) (*slog.Logger, error) {
	w := stderr
	if env.cfg.Logging.File != "" {
		f, err := os.OpenFile(env.cfg.ResolvePath(env.cfg.Logging.File), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		env.closers = append(env.closers, f)
		w = f
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(env.cfg.Logging.Level)); err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if env.cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openLoaders registers a fetcher chain per configured loader: class
// directories in classpath order, then jars.
func (env *environment) openLoaders() error {
	for _, spec := range env.cfg.Loaders {
		id := types.LoaderID(spec.ID)
		var chain loader.Chain

		for _, entry := range spec.Classpath {
			matches, err := doublestar.FilepathGlob(env.cfg.ResolvePath(entry))
			if err != nil {
				return fmt.Errorf("loader %s: invalid classpath entry %q: %w", id, entry, err)
			}
			for _, dir := range matches {
				if info, err := os.Stat(dir); err != nil || !info.IsDir() {
					continue
				}
				d, err := loader.NewDirFetcher(dir, nil, spec.Exclude)
				if err != nil {
					return fmt.Errorf("loader %s: %w", id, err)
				}
				chain = append(chain, d)
				env.dirs[id] = append(env.dirs[id], d)
			}
		}
		for _, jar := range spec.Jars {
			j, err := loader.OpenJar(env.cfg.ResolvePath(jar))
			if err != nil {
				return fmt.Errorf("loader %s: %w", id, err)
			}
			chain = append(chain, j)
			env.jars[id] = append(env.jars[id], j)
			env.closers = append(env.closers, j)
		}

		env.fetchers.Register(id, chain)
		env.logger.Debug("loader configured", "loader", id, "dirs", len(env.dirs[id]), "jars", len(spec.Jars))
	}
	return nil
}

// loaderID returns id when it is configured, or an error suggesting the
// closest configured loader.
func (env *environment) loaderID(id string) (types.LoaderID, error) {
	if _, ok := env.cfg.Loader(types.LoaderID(id)); ok {
		return types.LoaderID(id), nil
	}
	// The registry builds the hint.
	_, err := env.fetchers.Fetch(context.Background(), types.LoaderID(id), "")
	return "", err
}

// loadBaseline defines every class on the loader's classpath in the host.
func (env *environment) loadBaseline(ctx context.Context, id types.LoaderID) error {
	var names []string
	seen := make(map[string]bool)
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for _, d := range env.dirs[id] {
		list, err := d.List()
		if err != nil {
			return err
		}
		add(list)
	}
	for _, j := range env.jars[id] {
		add(j.List())
	}

	if err := env.host.Load(ctx, id, env.fetcherFor(id), names); err != nil {
		return fmt.Errorf("failed to load classpath of %s: %w", id, err)
	}
	env.logger.Info("classpath loaded", "loader", id, "types", len(names))
	return nil
}

// fetcherFor serves the classpath of id.
func (env *environment) fetcherFor(id types.LoaderID) loader.Fetcher {
	return loader.FetcherFunc(func(ctx context.Context, _ types.LoaderID, name string) ([]byte, error) {
		return env.fetchers.Fetch(ctx, id, name)
	})
}

// Close releases open jars and log files.
func (env *environment) Close() {
	for _, c := range env.closers {
		_ = c.Close()
	}
	env.closers = nil
}

// readClasses reads class files named on the command line.
func readClasses(paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no class files given")
	}
	files := security.NewFileValidator(security.DefaultMaxClassSizeKB)
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		b, err := files.ReadClassFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
