package identity

import (
	"github.com/standardbeagle/redefine/internal/types"
)

// EntryView is a flat, comparable view of one committed descriptor.
type EntryView struct {
	Name      string   `json:"name"`
	Enclosing string   `json:"enclosing,omitempty"`
	Nested    []string `json:"nested,omitempty"`
	Bound     bool     `json:"bound"`
	HotCount  int      `json:"hot_count,omitempty"`
	Digest    uint64   `json:"digest"`
	Bytes     []byte   `json:"-"`
}

// Snapshot lists the committed descriptors of loader in insertion order.
func (c *Cache) Snapshot(loader types.LoaderID) []EntryView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[loader]
	if !ok {
		return nil
	}
	views := make([]EntryView, 0, len(t.order))
	for _, name := range t.order {
		d := t.entries[name]
		v := EntryView{
			Name:     name,
			Bound:    d.Bound() != nil,
			HotCount: d.HotCount(),
			Digest:   d.Fingerprint().Digest(),
			Bytes:    d.Bytes(),
		}
		if outer := d.Enclosing(); outer != nil {
			v.Enclosing = outer.CurrentName()
		}
		for _, n := range d.Nested() {
			v.Nested = append(v.Nested, n.CurrentName())
		}
		views = append(views, v)
	}
	return views
}
