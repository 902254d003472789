package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/watch"
	"github.com/standardbeagle/redefine/pkg/pathutil"
)

func watchCommand(c *cli.Context) error {
	env, err := newEnvironment(c, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	var roots []watch.Root
	for _, id := range env.cfg.LoaderIDs() {
		if err := env.loadBaseline(c.Context, id); err != nil {
			return err
		}
		for _, d := range env.dirs[id] {
			roots = append(roots, watch.Root{Loader: id, Dir: d.Root()})
		}
	}
	if len(roots) == 0 {
		return fmt.Errorf("no class directories to watch; configure a loader classpath")
	}

	reloader := watch.NewReloader(env.engine, env.host, env.fetchers)
	reloader.OnResult = func(b watch.Batch, res *redefine.Result) {
		fmt.Fprintf(c.App.Writer, "%s: redefined %d types (%d renamed, %d removed)\n",
			b.Loader, len(res.Plan.Descriptors), len(res.Renamed()), len(removedNames(res.Plan)))
	}

	w, err := watch.New(env.cfg.Watch, roots, reloader.Handle)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	for _, r := range roots {
		env.logger.Info("watching", "loader", r.Loader, "dir", pathutil.ToRelative(r.Dir, env.cfg.Project.Root))
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stats := w.Stats()
	env.logger.Info("watch stopped", "batches", stats.BatchesProcessed, "errors", stats.ErrorCount)
	return w.Stop()
}
