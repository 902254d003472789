// Package match pairs new nested types with their previous generation and
// keeps the rename rules that result from it.
package match

import (
	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/types"
)

// Pair is the outcome for one new descriptor. Prev is nil when nothing
// scored above zero.
type Pair struct {
	New   *descriptor.TypeDescriptor
	Prev  *descriptor.TypeDescriptor
	Score int
}

// BestMatch returns the index of the candidate scoring highest against fp,
// or -1 when every candidate scores 0. Ties go to the earliest candidate
// and a perfect score ends the scan.
func BestMatch(fp fingerprint.Fingerprint, candidates []*descriptor.TypeDescriptor, opts fingerprint.ScoreOptions) (int, int) {
	best, maxScore := -1, 0
	for i, c := range candidates {
		score := fingerprint.Score(fp, c.Fingerprint(), opts)
		if score > maxScore {
			best, maxScore = i, score
			if maxScore == types.MaxScore {
				break
			}
		}
	}
	return best, maxScore
}

// Assign greedily matches next against prev. Each new descriptor, in
// order, takes its best remaining candidate; a taken candidate is gone for
// the rest of the scan. The unmatched previous descriptors are returned in
// their original order.
func Assign(next, prev []*descriptor.TypeDescriptor, opts fingerprint.ScoreOptions) ([]Pair, []*descriptor.TypeDescriptor) {
	remaining := append([]*descriptor.TypeDescriptor(nil), prev...)
	pairs := make([]Pair, 0, len(next))
	for _, n := range next {
		i, score := BestMatch(n.MatchFingerprint(), remaining, opts)
		if i < 0 {
			pairs = append(pairs, Pair{New: n})
			continue
		}
		pairs = append(pairs, Pair{New: n, Prev: remaining[i], Score: score})
		remaining = append(remaining[:i], remaining[i+1:]...)
	}
	return pairs, remaining
}
