package player

import "strings"

// MatchFunc scores the similarity of two strings in [0, 1]. The queue's
// selector matching takes it as a pluggable strategy so the algorithm can
// be swapped or tested independently of the mutation logic.
type MatchFunc func(a, b string) float64

// DefaultMatchCutoff is the minimum similarity for a fuzzy selector match.
const DefaultMatchCutoff = 0.5

// Similarity is the default MatchFunc: Levenshtein distance normalized by
// the longer string's length.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	dist := levenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshteinDistance(a, b string) int {
	if a == "" {
		return len(b)
	}
	if b == "" {
		return len(a)
	}

	runesA := []rune(a)
	runesB := []rune(b)
	lenA := len(runesA)
	lenB := len(runesB)

	// Two-row matrix is enough.
	prev := make([]int, lenB+1)
	curr := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prev[j] = j
	}

	for i := 1; i <= lenA; i++ {
		curr[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 1
			if runesA[i-1] == runesB[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[lenB]
}

// bestMatch returns the candidate key with the highest similarity to name
// at or above cutoff, or false when nothing qualifies.
func bestMatch(name string, candidates []string, match MatchFunc, cutoff float64) (int, bool) {
	name = strings.ToLower(name)
	bestIdx := -1
	bestScore := 0.0
	for i, c := range candidates {
		score := match(name, strings.ToLower(c))
		if score >= cutoff && score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return bestIdx, true
}
