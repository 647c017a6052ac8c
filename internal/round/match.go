package round

import "strings"

// MatchThreshold is the share of words that must overlap for a non-exact
// guess to count.
const MatchThreshold = 0.9

// IsMatch reports whether guess names the same song as canonical. Exact
// normalized equality wins; otherwise words are compared by containment in
// either direction and the guess matches when at least MatchThreshold of the
// longer word list is covered.
func IsMatch(guess, canonical string) bool {
	g := Normalize(guess)
	c := Normalize(canonical)
	if g == c {
		return true
	}
	return wordOverlap(strings.Fields(g), strings.Fields(c)) >= MatchThreshold
}

func wordOverlap(guessWords, canonicalWords []string) float64 {
	if len(guessWords) == 0 || len(canonicalWords) == 0 {
		return 0
	}
	matched := 0
	for _, gw := range guessWords {
		for _, cw := range canonicalWords {
			if strings.Contains(gw, cw) || strings.Contains(cw, gw) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(max(len(guessWords), len(canonicalWords)))
}
