package match

import (
	"maps"
	"slices"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/types"
)

// RuleSet holds the renames of one loader. Each rename old -> new is kept
// in three forms: the bare name, the type reference L<name>; and the
// single-argument constructor signature (L<name>;)V.
type RuleSet struct {
	renames []descriptor.Rename
	forms   map[string]string
}

// NewRuleSet creates an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{forms: make(map[string]string)}
}

// Add records old -> new. Adding the same old name again replaces the
// earlier target.
func (rs *RuleSet) Add(oldName, newName string) {
	if _, ok := rs.forms[oldName]; ok {
		for i := range rs.renames {
			if rs.renames[i].Old == oldName {
				rs.renames[i].New = newName
			}
		}
	} else {
		rs.renames = append(rs.renames, descriptor.Rename{Old: oldName, New: newName})
	}
	rs.forms[oldName] = newName
	rs.forms[types.ReferenceForm(oldName)] = types.ReferenceForm(newName)
	rs.forms[types.ConstructorForm(oldName)] = types.ConstructorForm(newName)
}

// Len returns the number of renames.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.renames)
}

// Renames returns the renames in the order they were added.
func (rs *RuleSet) Renames() []descriptor.Rename {
	if rs == nil {
		return nil
	}
	return slices.Clone(rs.renames)
}

// Lookup resolves a bare name.
func (rs *RuleSet) Lookup(name string) (string, bool) {
	if rs == nil {
		return "", false
	}
	for _, r := range rs.renames {
		if r.Old == name {
			return r.New, true
		}
	}
	return "", false
}

// Map returns every form as a substitution table for the patcher.
func (rs *RuleSet) Map() map[string]string {
	if rs == nil {
		return map[string]string{}
	}
	return maps.Clone(rs.forms)
}

// Rules maps each loader to its rule set.
type Rules map[types.LoaderID]*RuleSet

// Add records old -> new for loader.
func (r Rules) Add(loader types.LoaderID, oldName, newName string) {
	rs, ok := r[loader]
	if !ok {
		rs = NewRuleSet()
		r[loader] = rs
	}
	rs.Add(oldName, newName)
}

// For returns the rule set of loader, or nil.
func (r Rules) For(loader types.LoaderID) *RuleSet {
	return r[loader]
}

// Len counts renames across loaders.
func (r Rules) Len() int {
	n := 0
	for _, rs := range r {
		n += rs.Len()
	}
	return n
}
