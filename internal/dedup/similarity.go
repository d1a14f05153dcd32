package dedup

import (
	"github.com/agext/levenshtein"
)

// Similarity returns a symmetric score in [0, 1] for two already-normalized strings.
// Identical strings score 1. If either side is empty the score is 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

// truncateRunes caps s at n runes. n <= 0 disables the cap.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
