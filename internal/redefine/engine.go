// Package redefine reconciles a batch of replacement class definitions with
// the types already loaded: it decides which new definition continues which
// previous type, derives the rename rules that keep symbol tables
// consistent and reports the previous types left without a successor.
package redefine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/standardbeagle/redefine/internal/classfile"
	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/diagnostics"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/identity"
	"github.com/standardbeagle/redefine/internal/loader"
	"github.com/standardbeagle/redefine/internal/partition"
	"github.com/standardbeagle/redefine/internal/types"
)

var ErrNoPlan = errors.New("redefine: no plan to commit")

// Request is one replacement definition.
type Request = partition.Request

// NameExtractor reads the declared type name from class bytes.
type NameExtractor interface {
	ExtractName(b []byte) (string, error)
}

// NameExtractorFunc adapts a function to NameExtractor.
type NameExtractorFunc func(b []byte) (string, error)

// ExtractName calls f.
func (f NameExtractorFunc) ExtractName(b []byte) (string, error) { return f(b) }

// Patcher rewrites the symbol table of class bytes according to rules.
type Patcher interface {
	Patch(b []byte, rules map[string]string) ([]byte, error)
}

// PatcherFunc adapts a function to Patcher.
type PatcherFunc func(b []byte, rules map[string]string) ([]byte, error)

// Patch calls f.
func (f PatcherFunc) Patch(b []byte, rules map[string]string) ([]byte, error) { return f(b, rules) }

// TypeIndex lists the types the host has loaded. It is consulted for the
// previous generation of types the identity cache has never seen.
type TypeIndex interface {
	Lookup(loader types.LoaderID, name string) (descriptor.Loaded, bool)
	// Nested returns the loaded types declared directly inside name, in
	// load order.
	Nested(loader types.LoaderID, name string) []descriptor.Loaded
}

// Engine plans and commits redefinitions against one identity cache. Plan,
// Commit and Redefine are serialized by a single lock.
type Engine struct {
	mu sync.Mutex

	cache     *identity.Cache
	fetcher   loader.Fetcher
	index     TypeIndex
	sink      diagnostics.Sink
	memo      *fingerprint.Memo
	names     NameExtractor
	patcher   Patcher
	score     fingerprint.ScoreOptions
	hotMarker string
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher sets where the bytes of nested types missing from a batch
// come from.
func WithFetcher(f loader.Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithIndex sets the loaded-type index.
func WithIndex(idx TypeIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// WithSink sets the diagnostic sink.
func WithSink(s diagnostics.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithMemo shares a fingerprint memo.
func WithMemo(m *fingerprint.Memo) Option {
	return func(e *Engine) { e.memo = m }
}

// WithNameExtractor replaces the class-file name extractor.
func WithNameExtractor(n NameExtractor) Option {
	return func(e *Engine) { e.names = n }
}

// WithPatcher replaces the default patcher used by Redefine.
func WithPatcher(p Patcher) Option {
	return func(e *Engine) { e.patcher = p }
}

// WithHierarchyGate disqualifies matches between types whose super class
// or interfaces differ.
func WithHierarchyGate(enabled bool) Option {
	return func(e *Engine) { e.score.HierarchyGate = enabled }
}

// WithHotMarker changes the marker used to name new synthetic types.
func WithHotMarker(marker string) Option {
	return func(e *Engine) {
		if marker != "" {
			e.hotMarker = marker
		}
	}
}

// New creates an engine over cache.
func New(cache *identity.Cache, opts ...Option) *Engine {
	e := &Engine{
		cache:     cache,
		sink:      diagnostics.DebugSink{},
		names:     NameExtractorFunc(classfile.ExtractName),
		patcher:   PatcherFunc(classfile.Patch),
		hotMarker: types.HotClassMarker,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sink = diagnostics.Safe(e.sink)
	return e
}

// Cache returns the identity cache.
func (e *Engine) Cache() *identity.Cache {
	return e.cache
}

// EvictLoader forgets every committed type of loader. Register it as the
// teardown hook of the host's loaders.
func (e *Engine) EvictLoader(id types.LoaderID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.EvictLoader(id)
}

// Plan matches reqs against the previous generation without changing any
// state. The plan can be committed once, as long as no other commit has
// touched its loaders in between.
func (e *Engine) Plan(ctx context.Context, reqs []Request) (*Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.plan(ctx, reqs)
	if err != nil {
		e.fail(err)
		return nil, err
	}
	return plan, nil
}

// Commit applies plan to the identity cache.
func (e *Engine) Commit(plan *Plan) error {
	if plan == nil || plan.batch == nil {
		return ErrNoPlan
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commit(plan)
}

func (e *Engine) commit(plan *Plan) error {
	if err := e.cache.Commit(plan.batch); err != nil {
		e.fail(err)
		return err
	}
	for _, id := range slices.Sorted(maps.Keys(plan.generations)) {
		e.sink.Record(diagnostics.Event{
			Kind:   diagnostics.KindCommit,
			Loader: id,
			Target: fmt.Sprintf("generation %d", e.cache.Generation(id)),
		})
	}
	return nil
}

// Redefine plans reqs, patches every resulting definition with the rules
// of its loader and commits, all under one lock. patcher may be nil to use
// the engine's patcher. On error nothing is committed.
func (e *Engine) Redefine(ctx context.Context, reqs []Request, patcher Patcher) (*Result, error) {
	if patcher == nil {
		patcher = e.patcher
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	plan, err := e.plan(ctx, reqs)
	if err != nil {
		e.fail(err)
		return nil, err
	}

	res := &Result{Plan: plan, Bytes: make([][]byte, len(plan.Descriptors))}
	patched := make(map[*descriptor.TypeDescriptor][]byte, len(plan.Descriptors))
	for i, d := range plan.Descriptors {
		b, err := patcher.Patch(d.Bytes(), plan.Rules.For(d.Loader()).Map())
		if err != nil {
			err = fmt.Errorf("failed to patch %s: %w", d.Key(), err)
			e.fail(err)
			return nil, err
		}
		res.Bytes[i] = b
		patched[d] = b
	}

	plan.batch = plan.newBatch(func(d *descriptor.TypeDescriptor) []byte { return patched[d] })
	if err := e.commit(plan); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) fail(err error) {
	ev := diagnostics.Event{Kind: diagnostics.KindFailure, Err: err}
	var (
		structural *rerrors.UnsupportedStructuralChangeError
		stale      *rerrors.StalePlanError
		contract   *rerrors.ContractViolationError
		naming     *rerrors.NameExtractionError
	)
	switch {
	case errors.As(err, &structural):
		ev.Loader, ev.Name = structural.Loader, structural.TypeName
	case errors.As(err, &stale):
		ev.Loader = stale.Loader
	case errors.As(err, &contract):
		ev.Loader = contract.Loader
	case errors.As(err, &naming):
		ev.Loader, ev.Name = naming.Loader, naming.Source
	}
	e.sink.Record(ev)
}
