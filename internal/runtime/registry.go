// Package runtime is an in-memory model of a host runtime: the types each
// loader has defined and their current bytes. The engine reads it as its
// loaded-type index and redefinition results are applied to it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/redefine/internal/classfile"
	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/types"
)

var (
	ErrAlreadyDefined = errors.New("redefine(runtime): type already defined")
	ErrNotDefined     = errors.New("redefine(runtime): type not defined")
	ErrNameMismatch   = errors.New("redefine(runtime): bytes declare a different type")
)

// DefaultLoadConcurrency bounds parallel fetches in Load.
const DefaultLoadConcurrency = 8

// Type is a defined type. Its bytes change on redefinition; its name and
// loader never do.
type Type struct {
	name   string
	loader types.LoaderID

	mu      sync.RWMutex
	bytes   []byte
	version int
}

func (t *Type) Name() string           { return t.name }
func (t *Type) Loader() types.LoaderID { return t.loader }

// Bytes returns the current definition.
func (t *Type) Bytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytes
}

// Version counts redefinitions, starting at 0.
func (t *Type) Version() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

func (t *Type) redefine(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes = b
	t.version++
}

// space is the state of one loader.
type space struct {
	types map[string]*Type
	order []string
}

// Registry holds the defined types of every loader.
type Registry struct {
	mu     sync.RWMutex
	spaces map[types.LoaderID]*space
	hooks  []func(types.LoaderID)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{spaces: make(map[types.LoaderID]*space)}
}

// OnDrop registers fn to run when a loader is dropped, after its types are
// gone.
func (r *Registry) OnDrop(fn func(types.LoaderID)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Define adds the type declared by b to loader.
func (r *Registry) Define(id types.LoaderID, b []byte) (descriptor.Loaded, error) {
	name, err := classfile.ExtractName(b)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.spaces[id]
	if !ok {
		s = &space{types: make(map[string]*Type)}
		r.spaces[id] = s
	}
	if _, ok := s.types[name]; ok {
		return nil, fmt.Errorf("%w: %s in loader %s", ErrAlreadyDefined, name, id)
	}
	t := &Type{name: name, loader: id, bytes: b}
	s.types[name] = t
	s.order = append(s.order, name)
	debug.LogLoader("defined %s in loader %s\n", name, id)
	return t, nil
}

// Redefine replaces the bytes of a defined type. The new bytes must declare
// the same name.
func (r *Registry) Redefine(id types.LoaderID, name string, b []byte) error {
	declared, err := classfile.ExtractName(b)
	if err != nil {
		return err
	}
	if declared != name {
		return fmt.Errorf("%w: %s redefined as %s", ErrNameMismatch, name, declared)
	}

	t, ok := r.lookup(id, name)
	if !ok {
		return fmt.Errorf("%w: %s in loader %s", ErrNotDefined, name, id)
	}
	t.redefine(b)
	debug.LogLoader("redefined %s in loader %s (version %d)\n", name, id, t.Version())
	return nil
}

// Unload removes a defined type.
func (r *Registry) Unload(id types.LoaderID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.spaces[id]
	if !ok {
		return fmt.Errorf("%w: %s in loader %s", ErrNotDefined, name, id)
	}
	if _, ok := s.types[name]; !ok {
		return fmt.Errorf("%w: %s in loader %s", ErrNotDefined, name, id)
	}
	delete(s.types, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	debug.LogLoader("unloaded %s from loader %s\n", name, id)
	return nil
}

func (r *Registry) lookup(id types.LoaderID, name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.spaces[id]
	if !ok {
		return nil, false
	}
	t, ok := s.types[name]
	return t, ok
}

// Lookup returns the defined type name of loader.
func (r *Registry) Lookup(id types.LoaderID, name string) (descriptor.Loaded, bool) {
	t, ok := r.lookup(id, name)
	if !ok {
		return nil, false
	}
	return t, true
}

// Nested returns the defined types declared directly inside name, in
// definition order.
func (r *Registry) Nested(id types.LoaderID, name string) []descriptor.Loaded {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.spaces[id]
	if !ok {
		return nil
	}
	var out []descriptor.Loaded
	for _, n := range s.order {
		if types.IsDirectlyNestedIn(n, name) {
			out = append(out, s.types[n])
		}
	}
	return out
}

// Names returns the defined type names of loader in definition order.
func (r *Registry) Names(id types.LoaderID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.spaces[id]; ok {
		return slices.Clone(s.order)
	}
	return nil
}

// Loaders returns every loader with at least one definition, sorted.
func (r *Registry) Loaders() []types.LoaderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.LoaderID, 0, len(r.spaces))
	for id := range r.spaces {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Fetch implements loader.Fetcher with the currently defined bytes. It is
// the last resort after resource lookup: a type the host has already
// defined can always be served.
func (r *Registry) Fetch(ctx context.Context, id types.LoaderID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := r.lookup(id, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s not defined in loader %s", loader.ErrNotFound, name, id)
	}
	return t.Bytes(), nil
}

// DropLoader forgets every type of loader and runs the drop hooks.
func (r *Registry) DropLoader(id types.LoaderID) {
	r.mu.Lock()
	delete(r.spaces, id)
	hooks := slices.Clone(r.hooks)
	r.mu.Unlock()

	debug.LogLoader("dropped loader %s\n", id)
	for _, fn := range hooks {
		fn(id)
	}
}

// Load fetches names through f concurrently and defines them in the order
// given. Nothing is defined when any fetch fails.
func (r *Registry) Load(ctx context.Context, id types.LoaderID, f loader.Fetcher, names []string) error {
	contents := make([][]byte, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultLoadConcurrency)
	for i, name := range names {
		g.Go(func() error {
			b, err := f.Fetch(gctx, id, name)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			contents[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, b := range contents {
		if _, err := r.Define(id, b); err != nil {
			return err
		}
	}
	return nil
}
