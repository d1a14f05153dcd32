package model

// MatchType classifies a duplicate verdict.
type MatchType string

const (
	MatchTypeExact   MatchType = "exact"
	MatchTypeSimilar MatchType = "similar"
	MatchTypeUnique  MatchType = "unique"
)

// Verdict is the outcome of a duplicate check.
// Similarity and Threshold are percentages in [0, 100].
type Verdict struct {
	IsDuplicate bool      `json:"is_duplicate"`
	MatchedID   *int64    `json:"matched_id,omitempty"`
	Similarity  float64   `json:"similarity"`
	MatchType   MatchType `json:"match_type"`
	TitleMatch  bool      `json:"title_match,omitempty"`
	BodyMatch   bool      `json:"body_match,omitempty"`
	Threshold   float64   `json:"threshold,omitempty"`
}

// DedupStats summarizes the fingerprint table.
type DedupStats struct {
	TotalHashes          int     `json:"total_hashes"`
	UniqueBodies         int     `json:"unique_bodies"`
	UniqueTitles         int     `json:"unique_titles"`
	DuplicateBodyGroups  int     `json:"duplicate_body_groups"`
	DuplicateTitleGroups int     `json:"duplicate_title_groups"`
	DuplicatePercentage  float64 `json:"duplicate_percentage"`
}

// SimilarTitle is one hit from a title similarity search.
type SimilarTitle struct {
	ContentID  int64   `json:"content_id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}
