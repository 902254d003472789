// Package partition splits a redefinition batch into top-level types and the
// synthetic types nested below them.
package partition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/standardbeagle/redefine/internal/descriptor"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/types"
)

// Request is one replacement definition. Bound is the runtime type being
// replaced, or nil when the caller does not know it.
type Request struct {
	Loader types.LoaderID
	Bound  descriptor.Loaded
	Bytes  []byte
}

// LoaderID resolves the loader a request is scoped by.
func (r Request) LoaderID() types.LoaderID {
	if r.Bound != nil {
		return r.Bound.Loader()
	}
	if r.Loader == "" {
		return types.BootLoader
	}
	return r.Loader
}

// NameFunc extracts the declared type name from raw bytes.
type NameFunc func([]byte) (string, error)

// BuildFunc creates the descriptor for a named request.
type BuildFunc func(name string, req Request) (*descriptor.TypeDescriptor, error)

type entry struct {
	index int
	key   types.TypeKey
	req   Request
}

// Partition names every request and arranges the batch into a forest.
// Requests with synthetic names are attached below their declared
// enclosing type, which must itself be part of the batch; everything else
// becomes a root. Roots keep batch order and so do siblings.
//
// Naming happens for the whole batch before any descriptor is built, so a
// malformed request aborts the batch without side effects.
func Partition(reqs []Request, name NameFunc, build BuildFunc) ([]*descriptor.TypeDescriptor, error) {
	entries := make([]entry, 0, len(reqs))
	seen := make(map[types.TypeKey]int, len(reqs))
	for i, req := range reqs {
		loader := req.LoaderID()
		var n string
		if req.Bound != nil {
			n = req.Bound.Name()
		} else {
			extracted, err := name(req.Bytes)
			if err != nil {
				return nil, nameError(loader, i, err)
			}
			n = extracted
		}

		key := types.TypeKey{Loader: loader, Name: n}
		if prev, dup := seen[key]; dup {
			return nil, rerrors.NewContractViolationError(loader,
				fmt.Sprintf("requests %d and %d define the same type", prev, i), []string{n})
		}
		seen[key] = i
		entries = append(entries, entry{index: i, key: key, req: req})
	}

	handled := make(map[types.TypeKey]*descriptor.TypeDescriptor, len(entries))
	var roots []*descriptor.TypeDescriptor
	var pending []entry
	for _, e := range entries {
		if types.IsSynthetic(e.key.Name) {
			pending = append(pending, e)
			continue
		}
		d, err := build(e.key.Name, e.req)
		if err != nil {
			return nil, err
		}
		handled[e.key] = d
		roots = append(roots, d)
	}

	// each wave attaches the pending entries whose enclosing type is handled
	for len(pending) > 0 {
		var next []entry
		for _, e := range pending {
			outerName, ok := types.OuterName(e.key.Name)
			if !ok {
				next = append(next, e)
				continue
			}
			outer, ok := handled[types.TypeKey{Loader: e.key.Loader, Name: outerName}]
			if !ok {
				next = append(next, e)
				continue
			}
			d, err := build(e.key.Name, e.req)
			if err != nil {
				return nil, err
			}
			outer.AddNested(d)
			handled[e.key] = d
		}
		if len(next) == len(pending) {
			return nil, unresolved(next, handled)
		}
		pending = next
	}
	return roots, nil
}

func nameError(loader types.LoaderID, index int, err error) error {
	source := fmt.Sprintf("request %d", index)
	var nameErr *rerrors.NameExtractionError
	if errors.As(err, &nameErr) {
		return nameErr.WithSource(loader, source)
	}
	return rerrors.NewNameExtractionError(0, err).WithSource(loader, source)
}

// unresolved reports entries that never chained to a root. That is a bug
// in the caller's batch.
func unresolved(left []entry, handled map[types.TypeKey]*descriptor.TypeDescriptor) error {
	byLoader := make(map[types.LoaderID][]string)
	for k := range handled {
		byLoader[k.Loader] = append(byLoader[k.Loader], k.Name)
	}

	loader := left[0].key.Loader
	names := make([]string, 0, len(left))
	for _, e := range left {
		names = append(names, e.key.Name)
	}
	slices.Sort(names)

	err := rerrors.NewContractViolationError(loader, "nested types without an enclosing type in the batch", names)
	for _, e := range left {
		outerName, ok := types.OuterName(e.key.Name)
		if !ok {
			continue
		}
		candidates := byLoader[e.key.Loader]
		slices.Sort(candidates)
		if closest, _ := types.ClosestName(outerName, candidates); closest != "" {
			err.WithHint(e.key.Name, closest)
		}
	}
	return err
}
