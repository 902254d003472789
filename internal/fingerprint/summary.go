package fingerprint

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/standardbeagle/redefine/internal/classfile"
	"github.com/standardbeagle/redefine/internal/types"
)

// DefaultMemoSize bounds the number of memoised summaries.
const DefaultMemoSize = 1024

// Summary is what the engine needs to know about one class file.
type Summary struct {
	Name string
	// Nested lists the synthetic types declared directly inside Name, in
	// first-reference order.
	Nested      []string
	Fingerprint Fingerprint
}

// Summarize decodes b and fingerprints it.
func Summarize(b []byte) (Summary, error) {
	f, err := classfile.Parse(b)
	if err != nil {
		return Summary{}, err
	}
	name, err := f.Name()
	if err != nil {
		return Summary{}, err
	}
	nested, err := f.NestedNames()
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}
	fp, err := Compute(f)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}

	synthetic := make([]string, 0, len(nested))
	for _, n := range nested {
		if types.IsSynthetic(n) {
			synthetic = append(synthetic, n)
		}
	}
	return Summary{Name: name, Nested: synthetic, Fingerprint: fp}, nil
}

type memoKey struct {
	hash uint64
	size int
}

// Memo caches summaries keyed by content hash and length.
type Memo struct {
	cache *lru.Cache[memoKey, Summary]
}

// NewMemo creates a memo holding at most size summaries.
func NewMemo(size int) (*Memo, error) {
	if size <= 0 {
		size = DefaultMemoSize
	}
	cache, err := lru.New[memoKey, Summary](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint memo: %w", err)
	}
	return &Memo{cache: cache}, nil
}

// Summarize returns the memoised summary of b, computing it on a miss.
// Returned slices are shared and must not be modified.
func (m *Memo) Summarize(b []byte) (Summary, error) {
	if m == nil {
		return Summarize(b)
	}
	key := memoKey{hash: xxhash.Sum64(b), size: len(b)}
	if s, ok := m.cache.Get(key); ok {
		return s, nil
	}
	s, err := Summarize(b)
	if err != nil {
		return Summary{}, err
	}
	m.cache.Add(key, s)
	return s, nil
}

// Len returns the number of memoised summaries.
func (m *Memo) Len() int {
	if m == nil {
		return 0
	}
	return m.cache.Len()
}
