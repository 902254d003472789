package types

import "github.com/hbollon/go-edlib"

// ClosestName finds the candidate with the smallest Levenshtein distance to
// input. It returns "" when there are no candidates.
func ClosestName(input string, candidates []string) (string, int) {
	bestMatch := ""
	bestDistance := 1000 // Large initial value

	for _, candidate := range candidates {
		distance := edlib.LevenshteinDistance(input, candidate)
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = candidate
		}
	}

	return bestMatch, bestDistance
}
