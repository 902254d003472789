// Package loader fetches class bytes on behalf of a defining loader.
package loader

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/types"
)

var (
	ErrNotFound      = errors.New("redefine(loader): type not found")
	ErrUnknownLoader = errors.New("redefine(loader): unknown loader")
)

// Fetcher returns the bytes of name as seen by loader, or an error wrapping
// ErrNotFound. Implementations may run arbitrary loader logic.
type Fetcher interface {
	Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, loader types.LoaderID, name string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error) {
	return f(ctx, loader, name)
}

// Chain tries each fetcher in order and returns the first result that is
// not ErrNotFound.
type Chain []Fetcher

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error) {
	for _, f := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := f.Fetch(ctx, loader, name)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s in loader %s", ErrNotFound, name, loader)
}

// Registry dispatches fetches to the fetcher registered for each loader.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[types.LoaderID]Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[types.LoaderID]Fetcher)}
}

// Register sets the fetcher for loader, replacing any earlier one.
func (r *Registry) Register(loader types.LoaderID, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[loader] = f
}

// Unregister removes the fetcher of loader.
func (r *Registry) Unregister(loader types.LoaderID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fetchers, loader)
}

// Loaders returns the registered loaders, sorted.
func (r *Registry) Loaders() []types.LoaderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loaders := make([]types.LoaderID, 0, len(r.fetchers))
	for l := range r.fetchers {
		loaders = append(loaders, l)
	}
	slices.Sort(loaders)
	return loaders
}

// Fetch implements Fetcher.
func (r *Registry) Fetch(ctx context.Context, loader types.LoaderID, name string) ([]byte, error) {
	r.mu.RLock()
	f, ok := r.fetchers[loader]
	r.mu.RUnlock()

	if !ok {
		known := make([]string, 0)
		for _, l := range r.Loaders() {
			known = append(known, l.String())
		}
		if closest, _ := types.ClosestName(loader.String(), known); closest != "" {
			return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownLoader, loader, closest)
		}
		return nil, fmt.Errorf("%w %q", ErrUnknownLoader, loader)
	}

	debug.LogLoader("fetch %s from loader %s\n", name, loader)
	return f.Fetch(ctx, loader, name)
}
