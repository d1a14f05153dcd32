package model

import "time"

// ContentStatus is the publication state of a content item.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
)

// Content is a post produced by the RSS importer or the AI generator.
type Content struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Body        string         `json:"body"`
	Excerpt     string         `json:"excerpt,omitempty"`
	Category    string         `json:"category,omitempty"`
	Language    string         `json:"language"`
	Status      ContentStatus  `json:"status"`
	SourceURL   string         `json:"source_url,omitempty"`
	SourceGUID  string         `json:"source_guid,omitempty"`
	FeedID      *int64         `json:"feed_id,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	PublishedAt *time.Time     `json:"published_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// MatchText returns the text the product matcher scans for this item.
func (c *Content) MatchText() string {
	return c.Title + "\n\n" + c.Body + "\n\n" + c.Excerpt
}

// Fingerprint is the persisted pair of digests for one content item.
type Fingerprint struct {
	ContentID int64     `json:"content_id"`
	TitleHash string    `json:"title_hash"`
	BodyHash  string    `json:"body_hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateText is a title/body pair evaluated before any content row exists.
type CandidateText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// RecentContent is the projection the similarity scan reads.
type RecentContent struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a named bucket content can be filed under.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Generation records the usage of one AI provider call.
type Generation struct {
	ID         string    `json:"id"`
	ContentID  *int64    `json:"content_id,omitempty"`
	Kind       string    `json:"kind"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	TokensUsed int       `json:"tokens_used"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}
