package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSynthetic(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"com/acme/Outer", false},
		{"com/acme/Outer$Inner", false},
		{"com/acme/Outer$1", true},
		{"com/acme/Outer$1$2", true},
		{"com/acme/Outer$1$Named", true},
		{"com/acme/Outer$hot0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSynthetic(tt.name))
		})
	}
}

func TestOuterName(t *testing.T) {
	outer, ok := OuterName("com/acme/Outer$1$2")
	assert.True(t, ok)
	assert.Equal(t, "com/acme/Outer$1", outer)

	_, ok = OuterName("com/acme/Outer")
	assert.False(t, ok)

	assert.True(t, IsDirectlyNestedIn("Outer$1", "Outer"))
	assert.False(t, IsDirectlyNestedIn("Outer$1$1", "Outer"))
	assert.False(t, IsDirectlyNestedIn("Outer2$1", "Outer"))
}

func TestDerivedForms(t *testing.T) {
	assert.Equal(t, "LOuter$1;", ReferenceForm("Outer$1"))
	assert.Equal(t, "(LOuter$1;)V", ConstructorForm("Outer$1"))
	assert.Equal(t, "a/b/C$1.class", ResourceName("a/b/C$1"))
	assert.Equal(t, "a.b.C$1", BinaryName("a/b/C$1"))
	assert.Equal(t, "a/b/C$1", InternalName("a.b.C$1"))
	assert.Equal(t, "app:Outer", TypeKey{Loader: "app", Name: "Outer"}.String())
}

func TestRewriteDescriptor(t *testing.T) {
	rules := map[string]string{
		"Outer$1": "Outer$2",
		"Outer$2": "Outer$3",
	}
	rename := func(name string) (string, bool) {
		n, ok := rules[name]
		return n, ok
	}

	tests := []struct {
		in       string
		expected string
		valid    bool
	}{
		{"LOuter$1;", "LOuter$2;", true},
		{"(LOuter$1;)V", "(LOuter$2;)V", true},
		{"(ILOuter$1;[LOuter$2;)LOuter$1;", "(ILOuter$2;[LOuter$3;)LOuter$2;", true},
		{"LOuter$1$1;", "LOuter$1$1;", true},
		{"()V", "()V", true},
		{"[[J", "[[J", true},
		{"Outer$1", "Outer$1", false},
		{"(LOuter$1;", "(LOuter$1;", false},
		{"LOuter$1;X", "LOuter$1;X", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			out, ok := RewriteDescriptor(tt.in, rename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestClosestName(t *testing.T) {
	name, dist := ClosestName("com/acme/Outr", []string{"com/acme/Other", "com/acme/Outer", "org/x/Y"})
	assert.Equal(t, "com/acme/Outer", name)
	assert.Equal(t, 1, dist)

	name, _ = ClosestName("x", nil)
	assert.Empty(t, name)
}
