package location

import (
	"github.com/agnivade/levenshtein"
)

// MatchThreshold is the minimum partial ratio for a name to count as a match.
const MatchThreshold = 85

// Ratio is a 0..100 similarity score: 100 minus the edit distance as a
// percentage of the longer string's length.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (100*(longest-dist) + longest/2) / longest
}

// PartialRatio is the best Ratio of the shorter string against every
// equally long window of the longer one. A substring scores 100.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		score := Ratio(s, string(long[i:i+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}
