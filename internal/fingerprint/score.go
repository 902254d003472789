package fingerprint

import "github.com/standardbeagle/redefine/internal/types"

// ScoreOptions tunes Score.
type ScoreOptions struct {
	// HierarchyGate disqualifies pairs whose super class or interfaces
	// differ. Off by default.
	HierarchyGate bool
}

// Score rates how likely a and b describe the same type across a
// recompilation. Each equal dimension contributes its fixed weight;
// 0 means the pair must not be matched and types.MaxScore is a perfect
// match.
func Score(a, b Fingerprint, opts ScoreOptions) int {
	if opts.HierarchyGate && !a.HierarchyEqual(b) {
		return 0
	}
	score := 0
	if a.MethodsEqual(b) {
		score += types.MethodFingerprintEquals
	}
	if a.Enclosing == b.Enclosing {
		score += types.EnclosingMethodFingerprintEquals
	}
	if a.FieldsEqual(b) {
		score += types.FieldFingerprintEquals
	}
	if a.NestedCount == b.NestedCount {
		score += types.NestedCountEquals
	}
	return score
}
