package types

import (
	"regexp"
	"strings"
)

// LoaderID identifies the defining loader of a type. All name lookups are
// scoped by loader: two loaders may define same-named, unrelated types.
type LoaderID string

// BootLoader is the loader used when a request does not name one.
const BootLoader LoaderID = "boot"

// String returns the loader identity as a string
func (id LoaderID) String() string {
	return string(id)
}

// Match scoring weights. A pair of type definitions earns each weight when
// the corresponding part of their fingerprints is equal.
const (
	MethodFingerprintEquals          = 8
	EnclosingMethodFingerprintEquals = 4
	FieldFingerprintEquals           = 2
	NestedCountEquals                = 1

	MaxScore = MethodFingerprintEquals + EnclosingMethodFingerprintEquals + FieldFingerprintEquals + NestedCountEquals
)

// HotClassMarker is inserted between an enclosing type name and a counter
// to build names for new synthetic types that have no predecessor.
const HotClassMarker = "$hot"

// ClassFileSuffix is appended to a type name to form its resource name.
const ClassFileSuffix = ".class"

// syntheticPattern matches compiler-generated nested names (Outer$1,
// Outer$1$2) and named types nested inside them (Outer$1$Inner).
var syntheticPattern = regexp.MustCompile(`\$\d+`)

// TypeKey is the loader-scoped identity of a type name.
type TypeKey struct {
	Loader LoaderID
	Name   string
}

// String formats the key as loader:name
func (k TypeKey) String() string {
	return string(k.Loader) + ":" + k.Name
}

// IsSynthetic reports whether name follows the synthetic nested naming
// convention (a $<digits> segment somewhere in the name).
func IsSynthetic(name string) bool {
	return syntheticPattern.MatchString(name)
}

// OuterName returns the declared enclosing type name of a nested name,
// i.e. everything before the last '$'.
func OuterName(name string) (string, bool) {
	i := strings.LastIndexByte(name, '$')
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}

// IsDirectlyNestedIn reports whether name is declared directly inside outer.
func IsDirectlyNestedIn(name, outer string) bool {
	o, ok := OuterName(name)
	return ok && o == outer
}

// ReferenceForm wraps an internal type name as a type reference descriptor.
func ReferenceForm(name string) string {
	return "L" + name + ";"
}

// ConstructorForm is the signature of a constructor taking a single
// reference to name, as used for captured enclosing instances.
func ConstructorForm(name string) string {
	return "(L" + name + ";)V"
}

// ResourceName returns the resource path holding the definition of name.
func ResourceName(name string) string {
	return name + ClassFileSuffix
}

// BinaryName converts an internal name (a/b/C) to its binary form (a.b.C).
func BinaryName(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// InternalName converts a binary name (a.b.C) to internal form (a/b/C).
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
