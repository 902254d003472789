// Package identity holds the loader-scoped identity cache: the committed
// generation of every type that has taken part in a redefinition.
package identity

import (
	"errors"
	"slices"
	"sync"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/types"
)

var (
	ErrAlreadyCommitted = errors.New("redefine(identity): batch already committed")
	ErrMissingEnclosing = errors.New("redefine(identity): nested entry has no committed enclosing entry")
)

// table is the state of one loader.
type table struct {
	entries    map[string]*descriptor.TypeDescriptor
	order      []string
	generation uint64
}

func newTable() *table {
	return &table{entries: make(map[string]*descriptor.TypeDescriptor)}
}

// Cache maps (loader, name) to the committed descriptor of that type. Reads
// return deep copies; Commit is the only mutator and applies a whole batch
// under the write lock.
type Cache struct {
	mu     sync.RWMutex
	tables map[types.LoaderID]*table
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{tables: make(map[types.LoaderID]*table)}
}

// Lookup returns a deep copy of the committed descriptor for name.
func (c *Cache) Lookup(loader types.LoaderID, name string) (*descriptor.TypeDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[loader]
	if !ok {
		return nil, false
	}
	d, ok := t.entries[name]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Contains reports whether name is committed for loader.
func (c *Cache) Contains(loader types.LoaderID, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[loader]
	if !ok {
		return false
	}
	_, ok = t.entries[name]
	return ok
}

// Nested returns deep copies of the committed nested descriptors of name,
// in order.
func (c *Cache) Nested(loader types.LoaderID, name string) []*descriptor.TypeDescriptor {
	d, ok := c.Lookup(loader, name)
	if !ok {
		return nil
	}
	return d.Nested()
}

// Generation returns the number of commits applied to loader.
func (c *Cache) Generation(loader types.LoaderID) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.tables[loader]; ok {
		return t.generation
	}
	return 0
}

// Len returns the number of committed types of loader.
func (c *Cache) Len(loader types.LoaderID) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if t, ok := c.tables[loader]; ok {
		return len(t.entries)
	}
	return 0
}

// Loaders returns every loader with a table, sorted.
func (c *Cache) Loaders() []types.LoaderID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	loaders := make([]types.LoaderID, 0, len(c.tables))
	for l := range c.tables {
		loaders = append(loaders, l)
	}
	slices.Sort(loaders)
	return loaders
}

// EvictLoader drops everything known about loader. It is the teardown hook
// for a loader that is no longer reachable.
func (c *Cache) EvictLoader(loader types.LoaderID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, loader)
}
