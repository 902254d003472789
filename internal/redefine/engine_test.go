package redefine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/redefine/internal/classfile"
	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/diagnostics"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/identity"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/runtime"
	"github.com/standardbeagle/redefine/internal/types"
)

// outer is a top-level type declaring the given anonymous types.
func outer(name string, nested ...string) []byte {
	b := classfile.NewBuilder(name).Method("run", "()V")
	for _, n := range nested {
		b.Nested(n)
	}
	return b.Bytes()
}

// anon is an anonymous type created in owner.run().
func anon(name, owner string, methods ...string) *classfile.Builder {
	b := classfile.NewBuilder(name).EnclosingMethod(owner, "run", "()V")
	for _, m := range methods {
		b.Method(m, "()V")
	}
	return b
}

// capturing is an anonymous type that keeps a reference to its enclosing
// instance, the way compilers emit this$N fields.
func capturing(name, owner string) []byte {
	return classfile.NewBuilder(name).
		EnclosingMethod(owner, "m2", "()V").
		Field("this$1", types.ReferenceForm(owner)).
		Method("<init>", types.ConstructorForm(owner)).
		Method("call", "()V").
		Bytes()
}

func host(t *testing.T, defs ...[]byte) *runtime.Registry {
	t.Helper()
	r := runtime.NewRegistry()
	for _, b := range defs {
		_, err := r.Define("app", b)
		require.NoError(t, err)
	}
	return r
}

func newEngine(reg *runtime.Registry, opts ...Option) (*Engine, *diagnostics.Recorder) {
	rec := &diagnostics.Recorder{}
	base := []Option{WithSink(rec)}
	if reg != nil {
		base = append(base, WithIndex(reg), WithFetcher(reg))
	}
	return New(identity.NewCache(), append(base, opts...)...), rec
}

func requests(defs ...[]byte) []Request {
	reqs := make([]Request, len(defs))
	for i, b := range defs {
		reqs[i] = Request{Loader: "app", Bytes: b}
	}
	return reqs
}

func matchesByName(p *Plan) map[string]Match {
	out := make(map[string]Match, len(p.Matches))
	for _, m := range p.Matches {
		out[m.Name] = m
	}
	return out
}

func TestNoOpRedefinition(t *testing.T) {
	gen := [][]byte{
		outer("Outer", "Outer$1", "Outer$2"),
		anon("Outer$1", "Outer", "a").Bytes(),
		anon("Outer$2", "Outer", "b").Bytes(),
	}
	reg := host(t, gen...)
	e, rec := newEngine(reg)

	reqs := make([]Request, len(gen))
	for i, b := range gen {
		name, err := classfile.ExtractName(b)
		require.NoError(t, err)
		bound, ok := reg.Lookup("app", name)
		require.True(t, ok)
		reqs[i] = Request{Bound: bound, Bytes: b}
	}

	plan, err := e.Plan(context.Background(), reqs)
	require.NoError(t, err)

	require.Len(t, plan.Matches, 3)
	for _, m := range plan.Matches {
		assert.Equal(t, types.MaxScore, m.Score, m.Name)
		assert.Equal(t, m.Name, m.Previous)
		assert.Equal(t, m.Name, m.Target)
	}
	assert.Zero(t, plan.Rules.Len())
	assert.Empty(t, plan.Removed)
	assert.Empty(t, rec.OfKind(diagnostics.KindRename))
	for _, d := range plan.Descriptors {
		assert.NotNil(t, d.Bound(), d.OriginalName())
	}

	// once committed the cache is the previous generation; still a no-op
	res, err := e.Redefine(context.Background(), reqs, nil)
	require.NoError(t, err)
	assert.Equal(t, gen, res.Bytes)

	plan, err = e.Plan(context.Background(), reqs)
	require.NoError(t, err)
	for _, m := range plan.Matches {
		assert.Equal(t, types.MaxScore, m.Score, m.Name)
	}
	assert.Zero(t, plan.Rules.Len())
}

func TestDeterministicTieBreak(t *testing.T) {
	for run := 0; run < 10; run++ {
		reg := host(t,
			outer("Outer", "Outer$1", "Outer$2"),
			anon("Outer$1", "Outer", "a").Bytes(),
			anon("Outer$2", "Outer", "a").Bytes(),
		)
		e, _ := newEngine(reg)

		plan, err := e.Plan(context.Background(), requests(
			outer("Outer", "Outer$2"),
			anon("Outer$2", "Outer", "changed").Bytes(),
		))
		require.NoError(t, err)

		m := matchesByName(plan)["Outer$2"]
		assert.Equal(t, "Outer$1", m.Previous, "equal scores go to the earliest previous type")
		assert.Equal(t, 7, m.Score)
		require.Len(t, plan.Removed, 1)
		assert.Equal(t, "Outer$2", plan.Removed[0].OriginalName())
		assert.Equal(t, []descriptor.Rename{{Old: "Outer$2", New: "Outer$1"}}, plan.Rules.For("app").Renames())
	}
}

func TestDeterministicTieBreakAgainstCommittedGeneration(t *testing.T) {
	for run := 0; run < 10; run++ {
		e, _ := newEngine(nil)

		g1, err := e.Plan(context.Background(), requests(
			outer("Outer", "Outer$1", "Outer$2"),
			anon("Outer$1", "Outer", "a").Bytes(),
			anon("Outer$2", "Outer", "a").Bytes(),
		))
		require.NoError(t, err)
		require.NoError(t, e.Commit(g1))

		g2, err := e.Plan(context.Background(), requests(
			outer("Outer", "Outer$2"),
			anon("Outer$2", "Outer", "changed").Bytes(),
		))
		require.NoError(t, err)

		m := matchesByName(g2)["Outer$2"]
		assert.Equal(t, "Outer$1", m.Previous, "equal scores go to the earliest cached nested type")
		assert.Equal(t, 7, m.Score)
		require.Len(t, g2.Removed, 1)
		assert.Equal(t, "Outer$2", g2.Removed[0].OriginalName())
		assert.Equal(t, []descriptor.Rename{{Old: "Outer$2", New: "Outer$1"}}, g2.Rules.For("app").Renames())
	}
}

func TestRemovedDetection(t *testing.T) {
	reg := host(t,
		outer("Outer", "Outer$1", "Outer$2", "Outer$3"),
		anon("Outer$1", "Outer", "a").Bytes(),
		anon("Outer$2", "Outer", "b").Bytes(),
		classfile.NewBuilder("Outer$3").
			EnclosingMethod("Outer", "other", "()V").
			Field("count", "I").
			Method("c", "()V").
			Nested("Outer$3$1").
			Bytes(),
		anon("Outer$3$1", "Outer$3", "d").Bytes(),
	)
	e, rec := newEngine(reg)

	res, err := e.Redefine(context.Background(), requests(
		outer("Outer", "Outer$1", "Outer$2"),
		anon("Outer$1", "Outer", "a").Bytes(),
		anon("Outer$2", "Outer", "b").Bytes(),
	), nil)
	require.NoError(t, err)

	require.Len(t, res.Plan.Removed, 1)
	assert.Equal(t, "Outer$3", res.Plan.Removed[0].OriginalName())
	for _, m := range res.Plan.Matches {
		assert.NotEmpty(t, m.Previous, "%s has no previous type", m.Name)
	}
	assert.Empty(t, rec.OfKind(diagnostics.KindHotName))
	assert.Len(t, rec.OfKind(diagnostics.KindRemoved), 1)

	require.NoError(t, res.Apply(reg))
	assert.Equal(t, []string{"Outer", "Outer$1", "Outer$2"}, reg.Names("app"))
	assert.False(t, e.Cache().Contains("app", "Outer$3"))
	assert.False(t, e.Cache().Contains("app", "Outer$3$1"))
}

func TestRenameTransitivity(t *testing.T) {
	reg := host(t,
		outer("Outer", "Outer$1", "Outer$2"),
		anon("Outer$1", "Outer", "m1").Bytes(),
		anon("Outer$2", "Outer", "m2").Nested("Outer$2$1").Bytes(),
		capturing("Outer$2$1", "Outer$2"),
	)
	e, _ := newEngine(reg)

	// the compiler swapped the numbering of the two anonymous types
	newInner := capturing("Outer$1$1", "Outer$1")
	res, err := e.Redefine(context.Background(), requests(
		outer("Outer", "Outer$1", "Outer$2"),
		anon("Outer$1", "Outer", "m2").Nested("Outer$1$1").Bytes(),
		newInner,
		anon("Outer$2", "Outer", "m1").Bytes(),
	), nil)
	require.NoError(t, err)
	plan := res.Plan

	byName := matchesByName(plan)
	assert.Equal(t, "Outer$2", byName["Outer$1"].Previous)
	assert.Equal(t, "Outer$1", byName["Outer$2"].Previous)
	assert.Equal(t, "Outer$2$1", byName["Outer$1$1"].Previous)
	assert.Equal(t, types.MaxScore, byName["Outer$1$1"].Score, "comparison uses the renamed enclosing type")

	// without the enclosing rename only the nested count agrees
	prevInner, err := fingerprint.Summarize(capturing("Outer$2$1", "Outer$2"))
	require.NoError(t, err)
	raw, err := fingerprint.Summarize(newInner)
	require.NoError(t, err)
	assert.Equal(t, types.NestedCountEquals, fingerprint.Score(raw.Fingerprint, prevInner.Fingerprint, fingerprint.ScoreOptions{}))

	assert.Equal(t, []descriptor.Rename{
		{Old: "Outer$1", New: "Outer$2"},
		{Old: "Outer$2", New: "Outer$1"},
		{Old: "Outer$1$1", New: "Outer$2$1"},
	}, plan.Rules.For("app").Renames())

	var names []string
	for _, d := range plan.Descriptors {
		names = append(names, d.CurrentName())
	}
	assert.Equal(t, []string{"Outer", "Outer$2", "Outer$2$1", "Outer$1"}, names)

	// the patched inner type is indistinguishable from its predecessor
	patched, err := fingerprint.Summarize(res.Bytes[2])
	require.NoError(t, err)
	assert.Equal(t, "Outer$2$1", patched.Name)
	assert.Equal(t, prevInner.Fingerprint.Digest(), patched.Fingerprint.Digest())

	require.NoError(t, res.Apply(reg))
	inner, ok := reg.Lookup("app", "Outer$2$1")
	require.True(t, ok)
	assert.Equal(t, res.Bytes[2], inner.Bytes())
}

func TestCachePersistsAcrossOperations(t *testing.T) {
	e, rec := newEngine(nil)

	g1, err := e.Redefine(context.Background(), requests(
		outer("Outer", "Outer$1"),
		anon("Outer$1", "Outer", "a").Bytes(),
	), nil)
	require.NoError(t, err)
	assert.Equal(t, "Outer$hot0", matchesByName(g1.Plan)["Outer$1"].Target, "no previous generation, fresh name")
	assert.Len(t, rec.OfKind(diagnostics.KindHotName), 1)

	snap := e.Cache().Snapshot("app")
	require.Len(t, snap, 2)
	assert.Equal(t, []string{"Outer$hot0"}, snap[0].Nested)
	assert.Equal(t, 1, snap[0].HotCount)

	g2, err := e.Plan(context.Background(), requests(
		outer("Outer", "Outer$1", "Outer$2"),
		anon("Outer$1", "Outer", "a").Bytes(),
		anon("Outer$2", "Outer", "z").Bytes(),
	))
	require.NoError(t, err)

	byName := matchesByName(g2)
	assert.Equal(t, "Outer$hot0", byName["Outer$1"].Previous, "the committed generation is the previous one")
	assert.Equal(t, types.MaxScore, byName["Outer$1"].Score)
	assert.Equal(t, "Outer$hot1", byName["Outer$2"].Target, "hot counter survives commits")
	assert.Empty(t, byName["Outer$2"].Previous)

	require.NoError(t, e.Commit(g2))
	assert.True(t, g2.Committed())
	assert.Equal(t, uint64(2), e.Cache().Generation("app"))
	outerEntry, ok := e.Cache().Lookup("app", "Outer")
	require.True(t, ok)
	assert.Equal(t, 2, outerEntry.HotCount())
}

func TestCommitAtomicityOnStructuralFailure(t *testing.T) {
	reg := host(t,
		outer("Outer", "Outer$1"),
		anon("Outer$1", "Outer", "a").Bytes(),
	)
	e, rec := newEngine(reg)
	_, err := e.Redefine(context.Background(), requests(
		outer("Outer", "Outer$1"),
		anon("Outer$1", "Outer", "b").Bytes(),
	), nil)
	require.NoError(t, err)

	before := e.Cache().Snapshot("app")
	generation := e.Cache().Generation("app")

	// Outer$5 is referenced but neither supplied nor fetchable
	_, err = e.Redefine(context.Background(), requests(
		outer("Outer", "Outer$1", "Outer$5"),
		anon("Outer$1", "Outer", "c").Bytes(),
	), nil)

	var structural *rerrors.UnsupportedStructuralChangeError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, types.LoaderID("app"), structural.Loader)
	assert.Equal(t, "Outer$5", structural.TypeName)
	assert.ErrorIs(t, err, loader.ErrNotFound)

	assert.Equal(t, before, e.Cache().Snapshot("app"))
	assert.Equal(t, generation, e.Cache().Generation("app"))

	failures := rec.OfKind(diagnostics.KindFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "Outer$5", failures[0].Name)
}

func TestStalePlan(t *testing.T) {
	reg := host(t, outer("Outer", "Outer$1"), anon("Outer$1", "Outer", "a").Bytes())
	e, _ := newEngine(reg)
	reqs := requests(outer("Outer", "Outer$1"), anon("Outer$1", "Outer", "b").Bytes())

	first, err := e.Plan(context.Background(), reqs)
	require.NoError(t, err)
	second, err := e.Plan(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, map[types.LoaderID]uint64{"app": 0}, first.Generations())

	require.NoError(t, e.Commit(second))
	before := e.Cache().Snapshot("app")

	err = e.Commit(first)
	var stale *rerrors.StalePlanError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, uint64(0), stale.Planned)
	assert.Equal(t, uint64(1), stale.Current)
	assert.False(t, first.Committed())
	assert.Equal(t, before, e.Cache().Snapshot("app"))

	assert.ErrorIs(t, e.Commit(second), identity.ErrAlreadyCommitted)
	assert.ErrorIs(t, e.Commit(nil), ErrNoPlan)
}

func TestMissingNestedIsFetched(t *testing.T) {
	reg := host(t, outer("Outer", "Outer$1"), anon("Outer$1", "Outer", "a").Bytes())
	e, rec := newEngine(reg)

	plan, err := e.Plan(context.Background(), requests(outer("Outer", "Outer$1")))
	require.NoError(t, err)

	require.Len(t, plan.Descriptors, 2)
	assert.Equal(t, "Outer$1", plan.Descriptors[1].OriginalName())
	assert.Equal(t, types.MaxScore, plan.Matches[1].Score)
	require.Len(t, rec.OfKind(diagnostics.KindFetch), 1)
	assert.Equal(t, "Outer$1", rec.OfKind(diagnostics.KindFetch)[0].Name)
}

func TestFetchedBytesMustDeclareTheName(t *testing.T) {
	wrong := loader.FetcherFunc(func(context.Context, types.LoaderID, string) ([]byte, error) {
		return anon("Outer$9", "Outer").Bytes(), nil
	})
	e, _ := newEngine(nil, WithFetcher(wrong))

	_, err := e.Plan(context.Background(), requests(outer("Outer", "Outer$1")))
	var structural *rerrors.UnsupportedStructuralChangeError
	require.True(t, errors.As(err, &structural))
	assert.Contains(t, structural.Reason, "Outer$9")
}

func TestFetchHonoursContext(t *testing.T) {
	dir, err := loader.NewDirFetcher(t.TempDir(), nil, nil)
	require.NoError(t, err)
	e, _ := newEngine(nil, WithFetcher(dir))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Plan(ctx, requests(outer("Outer", "Outer$1")))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNameExtractionFailureAbortsBatch(t *testing.T) {
	e, _ := newEngine(nil)

	_, err := e.Redefine(context.Background(), requests(
		outer("Outer"),
		[]byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0},
	), nil)

	var nameErr *rerrors.NameExtractionError
	require.True(t, errors.As(err, &nameErr))
	assert.Equal(t, "request 1", nameErr.Source)
	assert.Empty(t, e.Cache().Loaders())
}

func TestUnresolvedNestedIsContractViolation(t *testing.T) {
	e, _ := newEngine(nil)
	_, err := e.Plan(context.Background(), requests(anon("Outer$1", "Outer").Bytes()))

	var contract *rerrors.ContractViolationError
	require.True(t, errors.As(err, &contract))
	assert.Equal(t, []string{"Outer$1"}, contract.Names)
}

func TestHierarchyGate(t *testing.T) {
	defs := [][]byte{outer("Outer", "Outer$1"), anon("Outer$1", "Outer", "a").Bytes()}
	next := requests(outer("Outer", "Outer$1"), anon("Outer$1", "Outer", "a").Super("java/lang/Thread").Bytes())

	e, _ := newEngine(host(t, defs...))
	plan, err := e.Plan(context.Background(), next)
	require.NoError(t, err)
	assert.Equal(t, types.MaxScore, matchesByName(plan)["Outer$1"].Score)

	e, _ = newEngine(host(t, defs...), WithHierarchyGate(true))
	plan, err = e.Plan(context.Background(), next)
	require.NoError(t, err)
	m := matchesByName(plan)["Outer$1"]
	assert.Empty(t, m.Previous)
	assert.Equal(t, "Outer$hot0", m.Target)
	require.Len(t, plan.Removed, 1)
	assert.Equal(t, "Outer$1", plan.Removed[0].OriginalName())
}

func TestHotMarkerOption(t *testing.T) {
	e, _ := newEngine(nil, WithHotMarker("$reload"))
	plan, err := e.Plan(context.Background(), requests(outer("Outer", "Outer$1"), anon("Outer$1", "Outer").Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "Outer$reload0", matchesByName(plan)["Outer$1"].Target)
}

func TestHotNameSkipsTakenNames(t *testing.T) {
	// the host already defines a type under the first candidate name
	reg := host(t, outer("Outer"), anon("Outer$hot0", "Outer", "a").Bytes())
	e, _ := newEngine(reg)

	plan, err := e.Plan(context.Background(), requests(
		outer("Outer", "Outer$1"),
		anon("Outer$1", "Outer", "b").Bytes(),
	))
	require.NoError(t, err)
	assert.Equal(t, "Outer$hot1", matchesByName(plan)["Outer$1"].Target)
	assert.Empty(t, plan.Removed)
}

func TestHotNameAvoidsNewRootsOfTheBatch(t *testing.T) {
	e, _ := newEngine(nil)

	// a top-level type already carrying the first candidate name, e.g. one
	// written back by an earlier redefinition
	plan, err := e.Plan(context.Background(), requests(
		outer("Outer", "Outer$1"),
		anon("Outer$1", "Outer", "a").Bytes(),
		classfile.NewBuilder("Outer$hot0").Method("b", "()V").Bytes(),
	))
	require.NoError(t, err)

	byName := matchesByName(plan)
	assert.Equal(t, "Outer$hot0", byName["Outer$hot0"].Target)
	assert.Equal(t, "Outer$hot1", byName["Outer$1"].Target)

	seen := make(map[string]string)
	for _, d := range plan.Descriptors {
		other, dup := seen[d.CurrentName()]
		assert.False(t, dup, "%s and %s share %s", other, d.OriginalName(), d.CurrentName())
		seen[d.CurrentName()] = d.OriginalName()
	}

	require.NoError(t, e.Commit(plan))
	assert.Equal(t, len(plan.Descriptors), e.Cache().Len("app"))
}

func TestLoadersAreIndependent(t *testing.T) {
	e, _ := newEngine(nil)
	reqs := []Request{
		{Loader: "app", Bytes: outer("Outer", "Outer$1")},
		{Loader: "app", Bytes: anon("Outer$1", "Outer", "a").Bytes()},
		{Loader: "plugin", Bytes: outer("Outer", "Outer$1")},
		{Loader: "plugin", Bytes: anon("Outer$1", "Outer", "b").Bytes()},
	}
	res, err := e.Redefine(context.Background(), reqs, nil)
	require.NoError(t, err)

	assert.Equal(t, []types.LoaderID{"app", "plugin"}, e.Cache().Loaders())
	assert.Equal(t, 1, res.Plan.Rules.For("app").Len())
	assert.Equal(t, 1, res.Plan.Rules.For("plugin").Len())
	assert.Equal(t, uint64(1), e.Cache().Generation("app"))
	assert.Equal(t, uint64(1), e.Cache().Generation("plugin"))
}

func TestDropLoaderEvictsCache(t *testing.T) {
	reg := host(t, outer("Outer"))
	e, _ := newEngine(reg)
	reg.OnDrop(e.EvictLoader)

	_, err := e.Redefine(context.Background(), requests(outer("Outer")), nil)
	require.NoError(t, err)
	require.Equal(t, 1, e.Cache().Len("app"))

	reg.DropLoader("app")
	assert.Zero(t, e.Cache().Len("app"))
	assert.Zero(t, e.Cache().Generation("app"))
}

func TestPanickingSinkDoesNotAffectOutcome(t *testing.T) {
	e := New(identity.NewCache(), WithSink(diagnostics.SinkFunc(func(diagnostics.Event) {
		panic("sink failure")
	})))
	res, err := e.Redefine(context.Background(), requests(outer("Outer", "Outer$1"), anon("Outer$1", "Outer").Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Cache().Len("app"))
	assert.Len(t, res.Renamed(), 1)
}

func TestPatchFailureCommitsNothing(t *testing.T) {
	e, _ := newEngine(nil)
	broken := PatcherFunc(func([]byte, map[string]string) ([]byte, error) {
		return nil, errors.New("patcher broke")
	})
	_, err := e.Redefine(context.Background(), requests(outer("Outer")), broken)
	assert.EqualError(t, err, "failed to patch app:Outer: patcher broke")
	assert.Empty(t, e.Cache().Loaders())
}

func TestDeepHierarchy(t *testing.T) {
	const depth = 300
	defs := make([][]byte, 0, depth+1)
	defs = append(defs, outer("Outer", "Outer$1"))
	for i := 1; i <= depth; i++ {
		name := "Outer" + strings.Repeat("$1", i)
		owner, _ := types.OuterName(name)
		b := anon(name, owner, "m")
		if i < depth {
			b.Nested(name + "$1")
		}
		defs = append(defs, b.Bytes())
	}

	reg := host(t, defs...)
	e, _ := newEngine(reg)
	plan, err := e.Plan(context.Background(), requests(defs...))
	require.NoError(t, err)

	require.Len(t, plan.Matches, depth+1)
	for _, m := range plan.Matches {
		assert.Equal(t, types.MaxScore, m.Score)
	}
	assert.Zero(t, plan.Rules.Len())
}
