package watch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/types"
)

// Reloader redefines the classes of each batch through an engine and
// installs the result in a host.
type Reloader struct {
	engine  *redefine.Engine
	host    redefine.Host
	fetcher loader.Fetcher

	// OnResult, when set, is called after each applied batch.
	OnResult func(Batch, *redefine.Result)
}

// NewReloader reads changed classes through f, which should serve the
// loaders being watched.
func NewReloader(e *redefine.Engine, h redefine.Host, f loader.Fetcher) *Reloader {
	return &Reloader{engine: e, host: h, fetcher: f}
}

// Handle implements Handler. A nested type never changes alone: the
// outermost type of every changed class joins the batch so the whole
// nest is reconciled together. Batches with only removals are ignored;
// a removed class surfaces when its enclosing type is redefined.
func (r *Reloader) Handle(ctx context.Context, b Batch) error {
	if len(b.Changed) == 0 {
		return nil
	}

	names := make(map[string]bool, len(b.Changed))
	for _, name := range b.Changed {
		names[name] = true
		if outer := outermost(name); outer != name {
			names[outer] = true
		}
	}

	reqs := make([]redefine.Request, 0, len(names))
	for _, name := range slices.Sorted(maps.Keys(names)) {
		bytes, err := r.fetcher.Fetch(ctx, b.Loader, name)
		if err != nil {
			// An outer type that is gone leaves its changed nested types
			// as roots of their own.
			if errors.Is(err, loader.ErrNotFound) && !slices.Contains(b.Changed, name) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		reqs = append(reqs, redefine.Request{Loader: b.Loader, Bytes: bytes})
	}

	res, err := r.engine.Redefine(ctx, reqs, nil)
	if err != nil {
		return err
	}
	if err := res.Apply(r.host); err != nil {
		return err
	}
	debug.LogWatch("redefined %d types in %s (%d renamed, %d removed)\n",
		len(res.Plan.Descriptors), b.Loader, len(res.Renamed()), len(res.Plan.Removed))

	if r.OnResult != nil {
		r.OnResult(b, res)
	}
	return nil
}

func outermost(name string) string {
	for {
		outer, ok := types.OuterName(name)
		if !ok {
			return name
		}
		name = outer
	}
}
