package identity

import (
	"fmt"
	"slices"

	"github.com/standardbeagle/redefine/internal/descriptor"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/types"
)

// Entry is one descriptor of a batch. Descriptor is detached (no nested
// list) and named by the identity the runtime will know it by.
type Entry struct {
	Descriptor *descriptor.TypeDescriptor
	Enclosing  string   // identity of the enclosing type, "" for roots
	Nested     []string // identities of the nested types, in order
}

// Batch is the cache-side effect of one redefinition.
type Batch struct {
	// Generations holds the generation each touched loader was read at.
	Generations map[types.LoaderID]uint64
	// Entries in pre-order: every enclosing entry precedes its nested ones.
	Entries []Entry
	// Removed types are dropped together with everything nested in them.
	Removed []types.TypeKey

	committed bool
}

// Committed reports whether the batch has been applied.
func (b *Batch) Committed() bool {
	return b.committed
}

// Commit applies b. Either every entry is applied and the generation of
// every touched loader advances, or nothing changes: a batch read at an
// older generation fails with *errors.StalePlanError.
func (c *Cache) Commit(b *Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b.committed {
		return ErrAlreadyCommitted
	}
	if err := c.validate(b); err != nil {
		return err
	}

	touched := make(map[types.LoaderID]struct{})
	for loader := range b.Generations {
		touched[loader] = struct{}{}
	}

	for _, key := range b.Removed {
		if t, ok := c.tables[key.Loader]; ok {
			t.dropSubtree(key.Name)
		}
		touched[key.Loader] = struct{}{}
	}

	for _, e := range b.Entries {
		d := e.Descriptor
		t := c.table(d.Loader())
		name := d.CurrentName()
		if cached, ok := t.entries[name]; ok {
			cached.Merge(d)
		} else {
			t.entries[name] = d
			t.order = append(t.order, name)
		}
		touched[d.Loader()] = struct{}{}
	}

	inBatch := make(map[types.TypeKey]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		inBatch[e.Descriptor.Key()] = struct{}{}
	}
	for _, e := range b.Entries {
		t := c.tables[e.Descriptor.Loader()]
		cached := t.entries[e.Descriptor.CurrentName()]
		children := make([]*descriptor.TypeDescriptor, 0, len(e.Nested))
		for _, n := range e.Nested {
			if child, ok := t.entries[n]; ok {
				children = append(children, child)
			}
		}
		cached.SetNested(children)

		// attach to an enclosing entry that was not redefined itself
		if e.Enclosing == "" {
			continue
		}
		if _, ok := inBatch[types.TypeKey{Loader: e.Descriptor.Loader(), Name: e.Enclosing}]; ok {
			continue
		}
		outer := t.entries[e.Enclosing]
		if !outer.KnowsNested(cached.OriginalName()) {
			outer.AddNested(cached)
		}
	}

	for loader := range touched {
		c.table(loader).generation++
	}
	b.committed = true
	return nil
}

func (c *Cache) validate(b *Batch) error {
	loaders := make([]types.LoaderID, 0, len(b.Generations))
	for l := range b.Generations {
		loaders = append(loaders, l)
	}
	slices.Sort(loaders)
	for _, l := range loaders {
		var current uint64
		if t, ok := c.tables[l]; ok {
			current = t.generation
		}
		if planned := b.Generations[l]; planned != current {
			return rerrors.NewStalePlanError(l, planned, current)
		}
	}

	removed := c.removedLocked(b.Removed)
	inBatch := make(map[types.TypeKey]struct{}, len(b.Entries))
	for _, e := range b.Entries {
		key := e.Descriptor.Key()
		if e.Enclosing != "" {
			outer := types.TypeKey{Loader: key.Loader, Name: e.Enclosing}
			if _, ok := inBatch[outer]; !ok {
				if _, gone := removed[outer]; gone || !c.containsLocked(outer) {
					return fmt.Errorf("%w: %s", ErrMissingEnclosing, key)
				}
			}
		}
		inBatch[key] = struct{}{}
	}
	return nil
}

// removedLocked returns every cached key dropped by removing keys,
// nested types included.
func (c *Cache) removedLocked(keys []types.TypeKey) map[types.TypeKey]struct{} {
	out := make(map[types.TypeKey]struct{})
	for _, key := range keys {
		t, ok := c.tables[key.Loader]
		if !ok {
			continue
		}
		root, ok := t.entries[key.Name]
		if !ok {
			continue
		}
		root.Walk(func(d *descriptor.TypeDescriptor) bool {
			out[types.TypeKey{Loader: key.Loader, Name: d.CurrentName()}] = struct{}{}
			return true
		})
	}
	return out
}

func (c *Cache) containsLocked(key types.TypeKey) bool {
	t, ok := c.tables[key.Loader]
	if !ok {
		return false
	}
	_, ok = t.entries[key.Name]
	return ok
}

func (c *Cache) table(loader types.LoaderID) *table {
	t, ok := c.tables[loader]
	if !ok {
		t = newTable()
		c.tables[loader] = t
	}
	return t
}

func (t *table) dropSubtree(name string) {
	root, ok := t.entries[name]
	if !ok {
		return
	}
	if outer := root.Enclosing(); outer != nil {
		kept := make([]*descriptor.TypeDescriptor, 0, len(outer.Nested()))
		for _, n := range outer.Nested() {
			if n != root {
				kept = append(kept, n)
			}
		}
		outer.SetNested(kept)
	}

	dropped := make(map[string]struct{})
	root.Walk(func(d *descriptor.TypeDescriptor) bool {
		dropped[d.CurrentName()] = struct{}{}
		delete(t.entries, d.CurrentName())
		return true
	})
	t.order = slices.DeleteFunc(t.order, func(n string) bool {
		_, ok := dropped[n]
		return ok
	})
}
