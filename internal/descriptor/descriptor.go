// Package descriptor models one type definition taking part in a
// redefinition: its names, bytes, fingerprint, runtime binding and the tree
// of synthetic types nested inside it.
package descriptor

import (
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/types"
)

// Loaded is a type already defined in the runtime.
type Loaded interface {
	Name() string
	Loader() types.LoaderID
	Bytes() []byte
}

// Rename maps an old type name to a new one.
type Rename struct {
	Old string
	New string
}

// TypeDescriptor describes one type definition before or after a
// redefinition. The original name and fingerprint never change; matching
// only moves the current name and binding.
type TypeDescriptor struct {
	originalName string
	currentName  string
	loader       types.LoaderID
	bytes        []byte
	fingerprint  fingerprint.Fingerprint
	bound        Loaded

	nested    []*TypeDescriptor
	enclosing *TypeDescriptor

	// renames of enclosing types, applied on top of the fingerprint when
	// comparing against a previous generation
	enclosingRenames []Rename

	hotCount int
}

// New creates a descriptor for a definition named name.
func New(name string, loader types.LoaderID, bytes []byte, fp fingerprint.Fingerprint) *TypeDescriptor {
	return &TypeDescriptor{
		originalName: name,
		currentName:  name,
		loader:       loader,
		bytes:        bytes,
		fingerprint:  fp,
	}
}

// FromLoaded creates a descriptor for a type already defined in the runtime.
func FromLoaded(l Loaded, fp fingerprint.Fingerprint) *TypeDescriptor {
	d := New(l.Name(), l.Loader(), l.Bytes(), fp)
	d.bound = l
	return d
}

func (d *TypeDescriptor) OriginalName() string                 { return d.originalName }
func (d *TypeDescriptor) CurrentName() string                  { return d.currentName }
func (d *TypeDescriptor) Loader() types.LoaderID               { return d.loader }
func (d *TypeDescriptor) Bytes() []byte                        { return d.bytes }
func (d *TypeDescriptor) Fingerprint() fingerprint.Fingerprint { return d.fingerprint }
func (d *TypeDescriptor) Bound() Loaded                        { return d.bound }
func (d *TypeDescriptor) Enclosing() *TypeDescriptor           { return d.enclosing }
func (d *TypeDescriptor) HotCount() int                        { return d.hotCount }

// Key returns the loader-scoped key of the current name.
func (d *TypeDescriptor) Key() types.TypeKey {
	return types.TypeKey{Loader: d.loader, Name: d.currentName}
}

// Nested returns the nested descriptors in order.
func (d *TypeDescriptor) Nested() []*TypeDescriptor {
	return append([]*TypeDescriptor(nil), d.nested...)
}

// Rename moves the current name. The original name is kept.
func (d *TypeDescriptor) Rename(name string) {
	d.currentName = name
}

// IsRenamed reports whether the current name differs from the original.
func (d *TypeDescriptor) IsRenamed() bool {
	return d.currentName != d.originalName
}

// Bind associates the descriptor with a loaded runtime type.
func (d *TypeDescriptor) Bind(l Loaded) {
	d.bound = l
}

// SetHotCount records how many fresh names have been derived from this type.
func (d *TypeDescriptor) SetHotCount(n int) {
	d.hotCount = n
}

// AddNested appends child and makes d its enclosing descriptor.
func (d *TypeDescriptor) AddNested(child *TypeDescriptor) {
	child.enclosing = d
	d.nested = append(d.nested, child)
}

// KnowsNested reports whether a nested descriptor originally named name is
// attached.
func (d *TypeDescriptor) KnowsNested(name string) bool {
	for _, n := range d.nested {
		if n.originalName == name {
			return true
		}
	}
	return false
}

// SetNested replaces the nested descriptors.
func (d *TypeDescriptor) SetNested(children []*TypeDescriptor) {
	d.nested = make([]*TypeDescriptor, len(children))
	for i, c := range children {
		c.enclosing = d
		d.nested[i] = c
	}
}

// PropagateEnclosingRename records that an enclosing type was renamed.
func (d *TypeDescriptor) PropagateEnclosingRename(oldName, newName string) {
	if oldName == newName {
		return
	}
	d.enclosingRenames = append(d.enclosingRenames, Rename{Old: oldName, New: newName})
}

// EnclosingRenames returns the renames recorded with PropagateEnclosingRename.
func (d *TypeDescriptor) EnclosingRenames() []Rename {
	return append([]Rename(nil), d.enclosingRenames...)
}

// MatchFingerprint is the fingerprint used for comparison against a
// previous generation: the immutable fingerprint with every enclosing
// rename applied.
func (d *TypeDescriptor) MatchFingerprint() fingerprint.Fingerprint {
	if len(d.enclosingRenames) == 0 {
		return d.fingerprint
	}
	rules := make(map[string]string, len(d.enclosingRenames))
	for _, r := range d.enclosingRenames {
		rules[r.Old] = r.New
	}
	return d.fingerprint.ApplyRules(func(n string) (string, bool) {
		r, ok := rules[n]
		return r, ok
	})
}

// Committed returns a detached copy of d as it will be known after the
// redefinition: named by its current name, carrying fp and bytes. Nested
// descriptors are not copied.
func (d *TypeDescriptor) Committed(fp fingerprint.Fingerprint, bytes []byte) *TypeDescriptor {
	return &TypeDescriptor{
		originalName: d.currentName,
		currentName:  d.currentName,
		loader:       d.loader,
		bytes:        bytes,
		fingerprint:  fp,
		bound:        d.bound,
		hotCount:     d.hotCount,
	}
}

// Merge updates d in place from a newer generation of the same type. The
// identity (original name) of d is kept, as is its nested list.
func (d *TypeDescriptor) Merge(src *TypeDescriptor) {
	d.currentName = src.currentName
	d.bytes = src.bytes
	d.fingerprint = src.fingerprint
	if src.bound != nil {
		d.bound = src.bound
	}
	if src.hotCount > d.hotCount {
		d.hotCount = src.hotCount
	}
}

// Clone deep-copies d and its nested tree. The copy has no enclosing
// descriptor; enclosing links inside the tree point into the copy.
func (d *TypeDescriptor) Clone() *TypeDescriptor {
	root := d.shallowCopy()
	type pair struct{ src, dst *TypeDescriptor }
	stack := []pair{{d, root}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range p.src.nested {
			c := child.shallowCopy()
			p.dst.AddNested(c)
			stack = append(stack, pair{child, c})
		}
	}
	return root
}

func (d *TypeDescriptor) shallowCopy() *TypeDescriptor {
	return &TypeDescriptor{
		originalName:     d.originalName,
		currentName:      d.currentName,
		loader:           d.loader,
		bytes:            d.bytes,
		fingerprint:      d.fingerprint,
		bound:            d.bound,
		enclosingRenames: append([]Rename(nil), d.enclosingRenames...),
		hotCount:         d.hotCount,
	}
}

// Walk visits d and every nested descriptor in pre-order. Returning false
// from fn skips the subtree below the visited descriptor.
func (d *TypeDescriptor) Walk(fn func(*TypeDescriptor) bool) {
	stack := []*TypeDescriptor{d}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		for i := len(cur.nested) - 1; i >= 0; i-- {
			stack = append(stack, cur.nested[i])
		}
	}
}

// Flatten returns the pre-order list of every descriptor under roots.
func Flatten(roots []*TypeDescriptor) []*TypeDescriptor {
	var out []*TypeDescriptor
	for _, r := range roots {
		r.Walk(func(d *TypeDescriptor) bool {
			out = append(out, d)
			return true
		})
	}
	return out
}
