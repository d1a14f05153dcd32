package generate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	powerWords = []string{
		"ultimate", "complete", "essential", "perfect", "amazing", "incredible",
		"shocking", "secret", "proven", "powerful", "exclusive", "free",
		"new", "best", "top", "how to", "why", "what", "guide", "tips",
	}
	emotionalWords = []string{
		"love", "hate", "fear", "surprise", "anger", "joy", "disgust",
		"trust", "anticipation", "unbelievable", "stunning", "heartbreaking",
	}
	urgencyWords  = []string{"now", "today", "urgent", "breaking", "just", "latest", "trending"}
	negativeWords = []string{"never", "stop", "avoid", "worst", "don't", "no", "without"}

	digits      = regexp.MustCompile(`\d`)
	punctuation = regexp.MustCompile(`[!?.,;:]`)
)

// ScoredHeadline is a headline with its click-through score.
type ScoredHeadline struct {
	Headline  string  `json:"headline"`
	Score     float64 `json:"score"`
	Length    int     `json:"length"`
	WordCount int     `json:"word_count"`
}

// ScoreHeadline rates a headline from 0 to 100 for click-through potential.
// Word lists match substrings, so "no" also counts inside "know".
func ScoreHeadline(h string) float64 {
	score := 50.0
	length := len(h)
	words := wordCount(h)
	lower := strings.ToLower(h)

	switch {
	case length >= 50 && length <= 70:
		score += 15
	case length >= 40 && length <= 80:
		score += 10
	case length > 100:
		score -= 10
	}

	switch {
	case words >= 6 && words <= 12:
		score += 10
	case words >= 4 && words <= 15:
		score += 5
	}

	score += 3 * float64(countContained(lower, powerWords))
	score += 4 * float64(countContained(lower, emotionalWords))
	score += 3 * float64(countContained(lower, urgencyWords))
	score += 2 * float64(countContained(lower, negativeWords))

	if digits.MatchString(h) {
		score += 8
	}
	if strings.Contains(h, "?") {
		score += 5
	}
	if h != "" && unicode.IsUpper([]rune(h)[0]) {
		score += 2
	}
	if length > 5 && h == strings.ToUpper(h) {
		score -= 15
	}
	if len(punctuation.FindAllString(h, -1)) > 3 {
		score -= 5
	}

	return max(0, min(100, score))
}

// RankHeadlines scores headlines and sorts them best first. Ties keep input order.
func RankHeadlines(headlines []string) []ScoredHeadline {
	out := make([]ScoredHeadline, 0, len(headlines))
	for _, h := range headlines {
		out = append(out, ScoredHeadline{
			Headline:  h,
			Score:     ScoreHeadline(h),
			Length:    len(h),
			WordCount: wordCount(h),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func countContained(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

// wordCount counts runs of letters, apostrophes, and hyphens.
func wordCount(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	}))
}
