package redefine

import (
	"fmt"

	"github.com/standardbeagle/redefine/internal/descriptor"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/types"
)

// Result is a committed redefinition.
type Result struct {
	Plan *Plan
	// Bytes holds the patched definition of each of Plan.Descriptors.
	Bytes [][]byte
}

// Host is a runtime a Result can be applied to.
type Host interface {
	TypeIndex
	Define(loader types.LoaderID, b []byte) (descriptor.Loaded, error)
	Redefine(loader types.LoaderID, name string, b []byte) error
	Unload(loader types.LoaderID, name string) error
}

// Apply installs the patched definitions in h: types h already knows are
// redefined, the rest are defined, enclosing types first. Removed types
// are then unloaded, nested ones first; unload failures are collected
// rather than stopping the sweep.
func (r *Result) Apply(h Host) error {
	for i, d := range r.Plan.Descriptors {
		if _, ok := h.Lookup(d.Loader(), d.CurrentName()); ok {
			if err := h.Redefine(d.Loader(), d.CurrentName(), r.Bytes[i]); err != nil {
				return fmt.Errorf("failed to redefine %s: %w", d.Key(), err)
			}
			continue
		}
		if _, err := h.Define(d.Loader(), r.Bytes[i]); err != nil {
			return fmt.Errorf("failed to define %s: %w", d.Key(), err)
		}
	}

	var unload []types.TypeKey
	for _, removed := range r.Plan.Removed {
		removed.Walk(func(d *descriptor.TypeDescriptor) bool {
			if _, ok := h.Lookup(d.Loader(), d.CurrentName()); ok {
				unload = append(unload, d.Key())
			}
			return true
		})
	}
	var errs []error
	for i := len(unload) - 1; i >= 0; i-- {
		if err := h.Unload(unload[i].Loader, unload[i].Name); err != nil {
			errs = append(errs, fmt.Errorf("failed to unload %s: %w", unload[i], err))
		}
	}
	return rerrors.NewMultiError(errs).ErrorOrNil()
}

// Renamed returns the descriptors whose name changed, in pre-order.
func (r *Result) Renamed() []*descriptor.TypeDescriptor {
	var out []*descriptor.TypeDescriptor
	for _, d := range r.Plan.Descriptors {
		if d.IsRenamed() {
			out = append(out, d)
		}
	}
	return out
}
