package classfile

import (
	"errors"

	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/types"
)

// ExtractName returns the declared internal name of the class in b. It reads
// only as far as the this_class index. Failures are reported as
// *errors.NameExtractionError carrying the failing offset.
func ExtractName(b []byte) (string, error) {
	f, _, err := parseHead(b)
	if err != nil {
		return "", nameError(err)
	}
	name, err := f.Name()
	if err != nil {
		return "", rerrors.NewNameExtractionError(f.poolEnd+2, err)
	}
	if name == "" {
		return "", rerrors.NewNameExtractionError(f.poolEnd+2, errors.New("empty class name"))
	}
	return name, nil
}

func nameError(err error) error {
	var fe *FormatError
	if errors.As(err, &fe) {
		return rerrors.NewNameExtractionError(fe.Offset, fe.Err)
	}
	return rerrors.NewNameExtractionError(0, err)
}

// NestedNames returns the names of the types declared directly inside the
// class, as referenced from its constant pool and InnerClasses attribute.
// Names appear in first-reference order without duplicates.
func (f *File) NestedNames() ([]string, error) {
	this, err := f.Name()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	add := func(n string) {
		if !types.IsDirectlyNestedIn(n, this) {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}

	for _, n := range f.ClassNames() {
		add(n)
	}
	inner, err := f.InnerClasses()
	if err != nil {
		return nil, err
	}
	for _, ic := range inner {
		add(ic.Inner)
	}
	return names, nil
}

// DirectNestedNames parses b and returns its directly nested type names.
func DirectNestedNames(b []byte) ([]string, error) {
	f, err := Parse(b)
	if err != nil {
		return nil, err
	}
	return f.NestedNames()
}
