package fingerprint

import (
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/redefine/internal/classfile"
	"github.com/standardbeagle/redefine/internal/types"
)

// Member is a method or field signature.
type Member struct {
	Name       string
	Descriptor string
}

func (m Member) String() string {
	return m.Name + m.Descriptor
}

// Enclosing is the enclosing-method signature of a local or anonymous type.
// The zero value means the type has no enclosing method.
type Enclosing struct {
	Owner      string
	Method     string
	Descriptor string
}

// String returns owner.method+descriptor, or just the owner.
func (e Enclosing) String() string {
	if e.Method == "" {
		return e.Owner
	}
	return e.Owner + "." + e.Method + e.Descriptor
}

// Fingerprint is an order-independent structural summary of a type. Values
// are never modified after construction; Rename and ApplyRules return new
// values.
type Fingerprint struct {
	Methods     []Member // sorted
	Fields      []Member // sorted
	Enclosing   Enclosing
	NestedCount int

	Super      string
	Interfaces []string // sorted

	methodsDigest uint64
	fieldsDigest  uint64
}

// New builds a fingerprint from unordered member sets.
func New(methods, fields []Member, enclosing Enclosing, nestedCount int, super string, interfaces []string) Fingerprint {
	fp := Fingerprint{
		Methods:     sortedMembers(methods),
		Fields:      sortedMembers(fields),
		Enclosing:   enclosing,
		NestedCount: nestedCount,
		Super:       super,
		Interfaces:  slices.Sorted(slices.Values(interfaces)),
	}
	fp.methodsDigest = digest(fp.Methods)
	fp.fieldsDigest = digest(fp.Fields)
	return fp
}

func sortedMembers(in []Member) []Member {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b Member) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Descriptor, b.Descriptor)
	})
	return out
}

func digest(members []Member) uint64 {
	d := xxhash.New()
	for _, m := range members {
		_, _ = d.WriteString(m.Name)
		_, _ = d.Write([]byte{0})
		_, _ = d.WriteString(m.Descriptor)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Compute fingerprints a decoded class.
func Compute(f *classfile.File) (Fingerprint, error) {
	methods := make([]Member, 0, len(f.Methods))
	for _, m := range f.Methods {
		methods = append(methods, Member{Name: m.Name, Descriptor: m.Descriptor})
	}
	fields := make([]Member, 0, len(f.Fields))
	for _, m := range f.Fields {
		fields = append(fields, Member{Name: m.Name, Descriptor: m.Descriptor})
	}

	var enclosing Enclosing
	owner, method, desc, ok, err := f.EnclosingMethod()
	if err != nil {
		return Fingerprint{}, err
	}
	if ok {
		enclosing = Enclosing{Owner: owner, Method: method, Descriptor: desc}
	}

	nested, err := f.NestedNames()
	if err != nil {
		return Fingerprint{}, err
	}
	super, err := f.SuperName()
	if err != nil {
		return Fingerprint{}, err
	}
	ifaces, err := f.InterfaceNames()
	if err != nil {
		return Fingerprint{}, err
	}
	return New(methods, fields, enclosing, len(nested), super, ifaces), nil
}

// MethodsEqual reports whether both method sets are identical.
func (fp Fingerprint) MethodsEqual(other Fingerprint) bool {
	return fp.methodsDigest == other.methodsDigest && slices.Equal(fp.Methods, other.Methods)
}

// FieldsEqual reports whether both field sets are identical.
func (fp Fingerprint) FieldsEqual(other Fingerprint) bool {
	return fp.fieldsDigest == other.fieldsDigest && slices.Equal(fp.Fields, other.Fields)
}

// HierarchyEqual reports whether super class and interfaces are identical.
func (fp Fingerprint) HierarchyEqual(other Fingerprint) bool {
	return fp.Super == other.Super && slices.Equal(fp.Interfaces, other.Interfaces)
}

// Digest combines every dimension into one value for display and quick
// identity checks.
func (fp Fingerprint) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range []uint64{fp.methodsDigest, fp.fieldsDigest, uint64(fp.NestedCount)} {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		_, _ = d.Write(buf[:])
	}
	_, _ = d.WriteString(fp.Enclosing.String())
	_, _ = d.WriteString(fp.Super)
	for _, iface := range fp.Interfaces {
		_, _ = d.WriteString(iface)
	}
	return d.Sum64()
}

// ApplyRules rewrites every type name the fingerprint refers to through
// rename, in one pass.
func (fp Fingerprint) ApplyRules(rename func(string) (string, bool)) Fingerprint {
	renameName := func(n string) string {
		if r, ok := rename(n); ok {
			return r
		}
		return n
	}
	renameMembers := func(in []Member) []Member {
		out := make([]Member, len(in))
		for i, m := range in {
			out[i] = m
			if d, ok := types.RewriteDescriptor(m.Descriptor, rename); ok {
				out[i].Descriptor = d
			}
		}
		return out
	}

	enclosing := fp.Enclosing
	if enclosing.Owner != "" {
		enclosing.Owner = renameName(enclosing.Owner)
	}
	if d, ok := types.RewriteDescriptor(enclosing.Descriptor, rename); ok {
		enclosing.Descriptor = d
	}

	ifaces := make([]string, len(fp.Interfaces))
	for i, iface := range fp.Interfaces {
		ifaces[i] = renameName(iface)
	}
	super := fp.Super
	if super != "" {
		super = renameName(super)
	}

	return New(renameMembers(fp.Methods), renameMembers(fp.Fields), enclosing, fp.NestedCount, super, ifaces)
}

// Rename is ApplyRules with the single rule oldName -> newName.
func (fp Fingerprint) Rename(oldName, newName string) Fingerprint {
	if oldName == newName {
		return fp
	}
	return fp.ApplyRules(func(n string) (string, bool) {
		if n == oldName {
			return newName, true
		}
		return "", false
	})
}
