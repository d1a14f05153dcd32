// Package store persists content, fingerprints, the product catalog, feeds,
// import records, generation usage, and dead-lettered jobs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// Store is implemented by PostgresStore and SQLiteStore.
// Lookups of a single row return nil, nil when the row does not exist.
type Store interface {
	// Content
	CreateContent(ctx context.Context, c *model.Content) error
	GetContent(ctx context.Context, id int64) (*model.Content, error)
	SetContentImage(ctx context.Context, id int64, imageURL string) error
	ContentExistsBySourceURL(ctx context.Context, url string) (bool, error)
	ContentExistsByGUID(ctx context.Context, guid string) (bool, error)
	ListRecentContent(ctx context.Context, since time.Time, limit int) ([]model.RecentContent, error)
	SaveProductMatches(ctx context.Context, contentID int64, matches []model.ProductMatch) error
	ListProductMatches(ctx context.Context, contentID int64) ([]model.ProductMatch, error)

	// Fingerprints
	FindFingerprintByTitleHash(ctx context.Context, hash string) (*model.Fingerprint, error)
	FindFingerprintByBodyHash(ctx context.Context, hash string) (*model.Fingerprint, error)
	UpsertFingerprint(ctx context.Context, fp *model.Fingerprint) error
	FingerprintStats(ctx context.Context) (*model.DedupStats, error)
	DeleteOrphanedFingerprints(ctx context.Context, before time.Time) (int64, error)

	// Catalog and categories
	ListActiveCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error)
	UpsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error)
	CreateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context) ([]model.Category, error)

	// Feeds and imports
	CreateFeed(ctx context.Context, f *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	ListFeeds(ctx context.Context, activeOnly bool) ([]model.Feed, error)
	UpdateFeedCheck(ctx context.Context, f *model.Feed) error
	CreateImport(ctx context.Context, rec *model.ImportRecord) error
	UpdateImport(ctx context.Context, rec *model.ImportRecord) error
	GetImport(ctx context.Context, id string) (*model.ImportRecord, error)

	// Generation usage
	RecordGeneration(ctx context.Context, g *model.Generation) error

	// Monitoring aggregates
	ImportStats(ctx context.Context, since time.Time) (*model.ImportStats, error)
	GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error)

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend. driver is "postgres" or "sqlite".
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres", "":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, model.Wrap(model.ErrConfiguration, eris.Errorf("store: unknown driver %q", driver))
	}
}

// FeedLister lists feeds. Store satisfies it.
type FeedLister interface {
	ListFeeds(ctx context.Context, activeOnly bool) ([]model.Feed, error)
}

// ListDueFeeds returns the active feeds due for polling at now, highest priority first.
func ListDueFeeds(ctx context.Context, s FeedLister, now time.Time) ([]model.Feed, error) {
	feeds, err := s.ListFeeds(ctx, true)
	if err != nil {
		return nil, err
	}
	due := feeds[:0]
	for _, f := range feeds {
		if f.IsDue(now) {
			due = append(due, f)
		}
	}
	return due, nil
}

const defaultListLimit = 100

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
