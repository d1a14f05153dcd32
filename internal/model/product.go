package model

// MatchSource names the detection strategy that produced a raw match.
type MatchSource string

const (
	SourcePattern        MatchSource = "pattern"
	SourceKeyword        MatchSource = "keyword"
	SourceCatalogName    MatchSource = "catalog-name"
	SourceCatalogKeyword MatchSource = "catalog-keyword"
)

// CatalogEntry is a known affiliate product. The matcher only reads it.
type CatalogEntry struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Keywords []string `json:"keywords,omitempty"`
	IsActive bool     `json:"is_active"`
}

// RawMatch is a single detection before merging.
type RawMatch struct {
	Name           string      `json:"name"`
	Source         MatchSource `json:"source"`
	Category       string      `json:"category"`
	BaseConfidence float64     `json:"base_confidence"`
	CatalogID      *int64      `json:"catalog_id,omitempty"`
}

// ProductMatch is a merged, scored product mention.
type ProductMatch struct {
	Name         string      `json:"name"`
	Source       MatchSource `json:"source"`
	Category     string      `json:"category"`
	Confidence   float64     `json:"confidence"`
	CatalogID    *int64      `json:"catalog_id,omitempty"`
	MentionCount int         `json:"mention_count"`
}

// DetectionStats aggregates a set of product matches.
type DetectionStats struct {
	Total             int                 `json:"total"`
	BySource          map[MatchSource]int `json:"by_source"`
	ByCategory        map[string]int      `json:"by_category"`
	AverageConfidence float64             `json:"average_confidence"`
}
