package redefine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/diagnostics"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/identity"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/match"
	"github.com/standardbeagle/redefine/internal/partition"
	"github.com/standardbeagle/redefine/internal/types"
)

// Match is the outcome for one descriptor of a plan.
type Match struct {
	Loader types.LoaderID `json:"loader"`
	// Name is the name the definition was compiled with.
	Name string `json:"name"`
	// Previous is the identity of the matched previous type, "" when the
	// definition is new.
	Previous string `json:"previous,omitempty"`
	// Target is the name the definition will be known by.
	Target string `json:"target"`
	Score  int    `json:"score"`
}

// Plan is the outcome of matching one batch.
type Plan struct {
	// Roots are the top-level descriptors in batch order.
	Roots []*descriptor.TypeDescriptor
	// Descriptors lists every descriptor in pre-order.
	Descriptors []*descriptor.TypeDescriptor
	// Matches parallels Descriptors.
	Matches []Match
	// Removed are the previous types without a successor.
	Removed []*descriptor.TypeDescriptor
	Rules   match.Rules

	generations map[types.LoaderID]uint64
	batch       *identity.Batch
}

// Committed reports whether the plan has been applied to the cache.
func (p *Plan) Committed() bool {
	return p.batch != nil && p.batch.Committed()
}

// Generations returns the cache generation each loader was planned at.
func (p *Plan) Generations() map[types.LoaderID]uint64 {
	return maps.Clone(p.generations)
}

// newBatch builds the cache-side effect of the plan. bytesOf supplies the
// bytes to record for each descriptor.
func (p *Plan) newBatch(bytesOf func(*descriptor.TypeDescriptor) []byte) *identity.Batch {
	b := &identity.Batch{
		Generations: maps.Clone(p.generations),
		Entries:     make([]identity.Entry, 0, len(p.Descriptors)),
	}
	for _, d := range p.Descriptors {
		fp := d.Fingerprint()
		if rs := p.Rules.For(d.Loader()); rs.Len() > 0 {
			fp = fp.ApplyRules(rs.Lookup)
		}
		e := identity.Entry{Descriptor: d.Committed(fp, bytesOf(d))}
		if outer := d.Enclosing(); outer != nil {
			e.Enclosing = outer.CurrentName()
		}
		for _, n := range d.Nested() {
			e.Nested = append(e.Nested, n.CurrentName())
		}
		b.Entries = append(b.Entries, e)
	}
	for _, r := range p.Removed {
		b.Removed = append(b.Removed, types.TypeKey{Loader: r.Loader(), Name: r.OriginalName()})
	}
	return b
}

// planner carries the state of one Plan call.
type planner struct {
	e   *Engine
	ctx context.Context

	rules    match.Rules
	declared map[*descriptor.TypeDescriptor][]string // synthetic nested names in the bytes
	outcomes map[*descriptor.TypeDescriptor]Match
	claimed  map[types.TypeKey]struct{}
	removed  []*descriptor.TypeDescriptor
}

type workItem struct {
	next *descriptor.TypeDescriptor
	prev *descriptor.TypeDescriptor
}

func (e *Engine) plan(ctx context.Context, reqs []Request) (*Plan, error) {
	p := &planner{
		e:        e,
		ctx:      ctx,
		rules:    make(match.Rules),
		declared: make(map[*descriptor.TypeDescriptor][]string),
		outcomes: make(map[*descriptor.TypeDescriptor]Match),
		claimed:  make(map[types.TypeKey]struct{}),
	}

	roots, err := partition.Partition(reqs, e.names.ExtractName, p.build)
	if err != nil {
		return nil, err
	}

	// Roots keep their names, so fresh names must avoid all of them.
	for _, root := range roots {
		p.claim(root)
	}

	generations := make(map[types.LoaderID]uint64)
	work := make([]workItem, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		root := roots[i]
		generations[root.Loader()] = e.cache.Generation(root.Loader())

		prev, err := p.previous(root.Loader(), root.CurrentName())
		if err != nil {
			return nil, err
		}
		if prev != nil {
			p.adopt(root, prev, fingerprint.Score(root.Fingerprint(), prev.Fingerprint(), e.score))
		} else {
			p.outcomes[root] = Match{Loader: root.Loader(), Name: root.OriginalName(), Target: root.CurrentName()}
		}
		work = append(work, workItem{next: root, prev: prev})
	}

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		if err := p.resolveMissing(item.next); err != nil {
			return nil, err
		}
		children := item.next.Nested()
		for _, c := range children {
			for _, r := range item.next.EnclosingRenames() {
				c.PropagateEnclosingRename(r.Old, r.New)
			}
			c.PropagateEnclosingRename(item.next.OriginalName(), item.next.CurrentName())
		}

		pairs := make([]match.Pair, 0, len(children))
		if item.prev == nil {
			for _, c := range children {
				pairs = append(pairs, match.Pair{New: c})
			}
		} else {
			var removed []*descriptor.TypeDescriptor
			pairs, removed = match.Assign(children, item.prev.Nested(), e.score)
			for _, r := range removed {
				p.removed = append(p.removed, r)
				e.sink.Record(diagnostics.Event{Kind: diagnostics.KindRemoved, Loader: r.Loader(), Name: r.OriginalName()})
			}
		}

		for _, pair := range pairs {
			if pair.Prev != nil {
				p.adopt(pair.New, pair.Prev, pair.Score)
			} else {
				p.fresh(pair.New, item.next)
			}
		}
		for i := len(pairs) - 1; i >= 0; i-- {
			work = append(work, workItem{next: pairs[i].New, prev: pairs[i].Prev})
		}
	}

	plan := &Plan{
		Roots:       roots,
		Descriptors: descriptor.Flatten(roots),
		Removed:     p.removed,
		Rules:       p.rules,
		generations: generations,
	}
	plan.Matches = make([]Match, len(plan.Descriptors))
	for i, d := range plan.Descriptors {
		plan.Matches[i] = p.outcomes[d]
	}
	plan.batch = plan.newBatch((*descriptor.TypeDescriptor).Bytes)
	return plan, nil
}

// build creates the descriptor of one request.
func (p *planner) build(name string, req partition.Request) (*descriptor.TypeDescriptor, error) {
	id := req.LoaderID()
	sum, err := p.e.memo.Summarize(req.Bytes)
	if err != nil {
		return nil, rerrors.NewUnsupportedStructuralChangeError(id, name, "malformed class file").WithCause(err)
	}
	d := descriptor.New(name, id, req.Bytes, sum.Fingerprint)
	if req.Bound != nil {
		d.Bind(req.Bound)
	}
	p.declared[d] = sum.Nested
	return d, nil
}

// previous returns the previous generation of name: the committed entry if
// there is one, else a descriptor tree built from the loaded types.
func (p *planner) previous(id types.LoaderID, name string) (*descriptor.TypeDescriptor, error) {
	if d, ok := p.e.cache.Lookup(id, name); ok {
		return d, nil
	}
	if p.e.index == nil {
		return nil, nil
	}
	l, ok := p.e.index.Lookup(id, name)
	if !ok {
		return nil, nil
	}

	root, err := p.fromLoaded(l)
	if err != nil {
		return nil, err
	}
	stack := []*descriptor.TypeDescriptor{root}
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, nl := range p.e.index.Nested(id, d.CurrentName()) {
			if !types.IsSynthetic(nl.Name()) {
				continue
			}
			child, err := p.fromLoaded(nl)
			if err != nil {
				return nil, err
			}
			d.AddNested(child)
			stack = append(stack, child)
		}
	}
	return root, nil
}

func (p *planner) fromLoaded(l descriptor.Loaded) (*descriptor.TypeDescriptor, error) {
	sum, err := p.e.memo.Summarize(l.Bytes())
	if err != nil {
		return nil, rerrors.NewUnsupportedStructuralChangeError(l.Loader(), l.Name(), "loaded definition is unreadable").WithCause(err)
	}
	return descriptor.FromLoaded(l, sum.Fingerprint), nil
}

// resolveMissing fetches the nested types d declares that the batch did not
// supply.
func (p *planner) resolveMissing(d *descriptor.TypeDescriptor) error {
	for _, name := range p.declared[d] {
		if d.KnowsNested(name) {
			continue
		}
		b, err := p.fetch(d.Loader(), name)
		if err != nil {
			return rerrors.NewUnsupportedStructuralChangeError(d.Loader(), name, "nested type bytes unavailable").WithCause(err)
		}
		sum, err := p.e.memo.Summarize(b)
		if err != nil {
			return rerrors.NewUnsupportedStructuralChangeError(d.Loader(), name, "malformed class file").WithCause(err)
		}
		if sum.Name != name {
			return rerrors.NewUnsupportedStructuralChangeError(d.Loader(), name, fmt.Sprintf("fetched bytes declare %s", sum.Name))
		}

		child := descriptor.New(name, d.Loader(), b, sum.Fingerprint)
		d.AddNested(child)
		p.declared[child] = sum.Nested
		p.e.sink.Record(diagnostics.Event{Kind: diagnostics.KindFetch, Loader: d.Loader(), Name: name})
	}
	return nil
}

func (p *planner) fetch(id types.LoaderID, name string) ([]byte, error) {
	if p.e.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", loader.ErrNotFound)
	}
	b, err := p.e.fetcher.Fetch(p.ctx, id, name)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("fetcher returned no bytes")
	}
	return b, nil
}

// adopt makes next continue prev: next takes over the identity, binding and
// hot counter of prev.
func (p *planner) adopt(next, prev *descriptor.TypeDescriptor, score int) {
	if next.Bound() == nil && prev.Bound() != nil {
		next.Bind(prev.Bound())
	}
	if prev.HotCount() > next.HotCount() {
		next.SetHotCount(prev.HotCount())
	}

	target := prev.OriginalName()
	if next.CurrentName() != target {
		p.rename(next, target, diagnostics.KindRename)
	}
	p.claim(next)
	p.outcomes[next] = Match{
		Loader:   next.Loader(),
		Name:     next.OriginalName(),
		Previous: target,
		Target:   next.CurrentName(),
		Score:    score,
	}
	p.e.sink.Record(diagnostics.Event{
		Kind:   diagnostics.KindMatch,
		Loader: next.Loader(),
		Name:   next.OriginalName(),
		Target: target,
		Score:  score,
	})
}

// fresh names a nested type that has no predecessor after its enclosing
// type: <enclosing>$hot<N>, with N taken from the per-enclosing counter.
func (p *planner) fresh(d, enclosing *descriptor.TypeDescriptor) {
	n := enclosing.HotCount()
	var name string
	for {
		name = enclosing.CurrentName() + p.e.hotMarker + strconv.Itoa(n)
		n++
		if !p.taken(types.TypeKey{Loader: d.Loader(), Name: name}) {
			break
		}
	}
	enclosing.SetHotCount(n)

	p.rename(d, name, diagnostics.KindHotName)
	p.claim(d)
	p.outcomes[d] = Match{Loader: d.Loader(), Name: d.OriginalName(), Target: name}
}

func (p *planner) rename(d *descriptor.TypeDescriptor, name string, kind diagnostics.Kind) {
	p.rules.Add(d.Loader(), d.OriginalName(), name)
	p.e.sink.Record(diagnostics.Event{Kind: kind, Loader: d.Loader(), Name: d.OriginalName(), Target: name})
	d.Rename(name)
}

func (p *planner) claim(d *descriptor.TypeDescriptor) {
	p.claimed[d.Key()] = struct{}{}
}

// taken reports whether a name is used by this plan, the cache or the host.
func (p *planner) taken(key types.TypeKey) bool {
	if _, ok := p.claimed[key]; ok {
		return true
	}
	if p.e.cache.Contains(key.Loader, key.Name) {
		return true
	}
	if p.e.index != nil {
		if _, ok := p.e.index.Lookup(key.Loader, key.Name); ok {
			return true
		}
	}
	return false
}
