package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/types"
)

func member(name string) fingerprint.Member {
	return fingerprint.Member{Name: name, Descriptor: "()V"}
}

// desc builds a descriptor whose methods, fields, enclosing method and
// nested count are given directly
func desc(name string, methods []string, fields []string, enclosing string, nested int) *descriptor.TypeDescriptor {
	var ms, fs []fingerprint.Member
	for _, m := range methods {
		ms = append(ms, member(m))
	}
	for _, f := range fields {
		fs = append(fs, fingerprint.Member{Name: f, Descriptor: "I"})
	}
	fp := fingerprint.New(ms, fs, fingerprint.Enclosing{Owner: "Outer", Method: enclosing, Descriptor: "()V"}, nested, "java/lang/Object", nil)
	return descriptor.New(name, "app", nil, fp)
}

func TestBestMatchPrefersHigherScore(t *testing.T) {
	next := desc("Outer$1", []string{"run"}, []string{"x"}, "main", 0)
	candidates := []*descriptor.TypeDescriptor{
		desc("Outer$1", nil, []string{"x"}, "main", 0),    // 4+2+1
		desc("Outer$2", []string{"run"}, nil, "other", 0), // 8+1
	}

	i, score := BestMatch(next.Fingerprint(), candidates, fingerprint.ScoreOptions{})
	assert.Equal(t, 1, i)
	assert.Equal(t, types.MethodFingerprintEquals+types.NestedCountEquals, score)
}

func TestBestMatchTieGoesToFirst(t *testing.T) {
	next := desc("Outer$3", []string{"run"}, nil, "main", 0)
	candidates := []*descriptor.TypeDescriptor{
		desc("Outer$1", []string{"run"}, []string{"a"}, "main", 1),
		desc("Outer$2", []string{"run"}, []string{"b"}, "main", 1),
	}

	for i := 0; i < 10; i++ {
		idx, score := BestMatch(next.Fingerprint(), candidates, fingerprint.ScoreOptions{})
		require.Equal(t, 0, idx)
		require.Equal(t, types.MethodFingerprintEquals+types.EnclosingMethodFingerprintEquals, score)
	}
}

func TestBestMatchShortCircuitsOnPerfectScore(t *testing.T) {
	next := desc("Outer$1", []string{"run"}, nil, "main", 0)
	candidates := []*descriptor.TypeDescriptor{
		desc("Outer$5", []string{"run"}, nil, "main", 0),
		desc("Outer$6", []string{"run"}, nil, "main", 0),
	}
	i, score := BestMatch(next.Fingerprint(), candidates, fingerprint.ScoreOptions{})
	assert.Equal(t, 0, i)
	assert.Equal(t, types.MaxScore, score)
}

func TestBestMatchZeroDisqualifies(t *testing.T) {
	next := desc("Outer$1", []string{"run"}, nil, "main", 0)
	candidates := []*descriptor.TypeDescriptor{
		desc("Outer$1", []string{"call"}, []string{"x"}, "other", 2),
	}
	i, score := BestMatch(next.Fingerprint(), candidates, fingerprint.ScoreOptions{})
	assert.Equal(t, -1, i)
	assert.Zero(t, score)

	i, _ = BestMatch(next.Fingerprint(), nil, fingerprint.ScoreOptions{})
	assert.Equal(t, -1, i)
}

func TestAssignIsGreedyInNewOrder(t *testing.T) {
	// first new type claims the shared best candidate even though the
	// second would have scored it higher
	prevA := desc("Outer$1", []string{"run"}, []string{"x"}, "main", 0)
	prevB := desc("Outer$2", nil, nil, "main", 0)
	gone := desc("Outer$3", []string{"gone"}, []string{"y"}, "elsewhere", 4)

	first := desc("Outer$1", []string{"run"}, nil, "other", 0)
	second := desc("Outer$2", []string{"run"}, []string{"x"}, "main", 0)

	pairs, removed := Assign([]*descriptor.TypeDescriptor{first, second},
		[]*descriptor.TypeDescriptor{prevA, prevB, gone}, fingerprint.ScoreOptions{})

	require.Len(t, pairs, 2)
	assert.Same(t, prevA, pairs[0].Prev)
	assert.Same(t, prevB, pairs[1].Prev)
	assert.Equal(t, []*descriptor.TypeDescriptor{gone}, removed)
}

func TestAssignUnmatched(t *testing.T) {
	n := desc("Outer$1", []string{"run"}, nil, "main", 0)
	pairs, removed := Assign([]*descriptor.TypeDescriptor{n}, nil, fingerprint.ScoreOptions{})
	require.Len(t, pairs, 1)
	assert.Nil(t, pairs[0].Prev)
	assert.Zero(t, pairs[0].Score)
	assert.Empty(t, removed)
}

func TestAssignUsesEnclosingRenames(t *testing.T) {
	prevFp := fingerprint.New(nil, []fingerprint.Member{{Name: "this$1", Descriptor: "LOuter$2;"}}, fingerprint.Enclosing{Owner: "Outer$2"}, 0, "", nil)
	nextFp := fingerprint.New(nil, []fingerprint.Member{{Name: "this$1", Descriptor: "LOuter$1;"}}, fingerprint.Enclosing{Owner: "Outer$1"}, 0, "", nil)
	prev := descriptor.New("Outer$2$1", "app", nil, prevFp)
	next := descriptor.New("Outer$1$1", "app", nil, nextFp)

	pairs, _ := Assign([]*descriptor.TypeDescriptor{next}, []*descriptor.TypeDescriptor{prev}, fingerprint.ScoreOptions{})
	assert.Less(t, pairs[0].Score, types.MaxScore)

	next.PropagateEnclosingRename("Outer$1", "Outer$2")
	pairs, _ = Assign([]*descriptor.TypeDescriptor{next}, []*descriptor.TypeDescriptor{prev}, fingerprint.ScoreOptions{})
	assert.Equal(t, types.MaxScore, pairs[0].Score)
}

func TestRuleSet(t *testing.T) {
	rules := Rules{}
	assert.Zero(t, rules.Len())
	assert.Nil(t, rules.For("app"))
	assert.Empty(t, rules.For("app").Map())

	rules.Add("app", "Outer$3", "Outer$1")
	rules.Add("app", "Outer$1", "Outer$hot0")
	rules.Add("other", "A$1", "A$2")

	assert.Equal(t, 3, rules.Len())
	rs := rules.For("app")
	assert.Equal(t, []descriptor.Rename{{Old: "Outer$3", New: "Outer$1"}, {Old: "Outer$1", New: "Outer$hot0"}}, rs.Renames())

	n, ok := rs.Lookup("Outer$1")
	assert.True(t, ok)
	assert.Equal(t, "Outer$hot0", n)
	_, ok = rs.Lookup("LOuter$1;")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{
		"Outer$3":      "Outer$1",
		"LOuter$3;":    "LOuter$1;",
		"(LOuter$3;)V": "(LOuter$1;)V",
		"Outer$1":      "Outer$hot0",
		"LOuter$1;":    "LOuter$hot0;",
		"(LOuter$1;)V": "(LOuter$hot0;)V",
	}, rs.Map())

	rs.Add("Outer$3", "Outer$4")
	assert.Equal(t, 2, rs.Len())
	n, _ = rs.Lookup("Outer$3")
	assert.Equal(t, "Outer$4", n)
}
