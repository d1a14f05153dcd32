package model

import "time"

// FetchInterval controls how often a feed is polled.
type FetchInterval string

const (
	FetchEvery15Min FetchInterval = "15min"
	FetchHourly     FetchInterval = "hourly"
	FetchDaily      FetchInterval = "daily"
)

// Duration returns the polling period. Unknown values poll hourly.
func (f FetchInterval) Duration() time.Duration {
	switch f {
	case FetchEvery15Min:
		return 15 * time.Minute
	case FetchDaily:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Feed is a registered RSS or Atom source.
type Feed struct {
	ID            int64         `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Category      string        `json:"category,omitempty"`
	Language      string        `json:"language"`
	FetchInterval FetchInterval `json:"fetch_interval"`
	IsActive      bool          `json:"is_active"`
	Priority      int           `json:"priority"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`
	LastSuccessAt *time.Time    `json:"last_success_at,omitempty"`
	FailCount     int           `json:"fail_count"`
}

// IsDue reports whether the feed should be polled at now.
func (f *Feed) IsDue(now time.Time) bool {
	if !f.IsActive {
		return false
	}
	if f.LastCheckedAt == nil {
		return true
	}
	return f.LastCheckedAt.Before(now.Add(-f.FetchInterval.Duration()))
}

// MarkChecked records a poll attempt.
func (f *Feed) MarkChecked(success bool, now time.Time) {
	f.LastCheckedAt = &now
	if success {
		f.LastSuccessAt = &now
		f.FailCount = 0
		return
	}
	f.FailCount++
}

// FeedItem is one parsed entry from a feed.
type FeedItem struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Author      string     `json:"author,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Image       string     `json:"image,omitempty"`
	GUID        string     `json:"guid,omitempty"`
}

// Text returns the item body, falling back to the description.
func (i *FeedItem) Text() string {
	if i.Content != "" {
		return i.Content
	}
	return i.Description
}

// FeedInfo is the channel-level metadata of a fetched feed.
type FeedInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	Language    string `json:"language"`
	Image       string `json:"image,omitempty"`
	Copyright   string `json:"copyright,omitempty"`
}

// DiscoveredFeed is a feed link found on an HTML page.
type DiscoveredFeed struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// ImportStatus is the lifecycle state of a feed import.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportLogEntry describes what happened to one feed item.
type ImportLogEntry struct {
	Title     string `json:"title"`
	Status    string `json:"status"`
	ContentID *int64 `json:"content_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ImportRecord tracks one run of a feed import.
type ImportRecord struct {
	ID            string           `json:"id"`
	FeedID        int64            `json:"feed_id"`
	Status        ImportStatus     `json:"status"`
	ItemsFound    int              `json:"items_found"`
	ItemsImported int              `json:"items_imported"`
	ItemsSkipped  int              `json:"items_skipped"`
	Log           []ImportLogEntry `json:"log,omitempty"`
	Error         string           `json:"error,omitempty"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
