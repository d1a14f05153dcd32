package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row, and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const contentColumns = `id, title, slug, body, excerpt, category, language, status, source_url, source_guid,
	feed_id, image_url, metadata, published_at, created_at, updated_at`

func scanContent(row rowScanner) (*model.Content, error) {
	var c model.Content
	var meta []byte
	if err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.Body, &c.Excerpt, &c.Category, &c.Language, &c.Status,
		&c.SourceURL, &c.SourceGUID, &c.FeedID, &c.ImageURL, &meta, &c.PublishedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, eris.Wrapf(err, "store: decode metadata of content %d", c.ID)
		}
	}
	return &c, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: encode metadata")
}

const feedColumns = `id, url, title, category, language, fetch_interval, is_active, priority,
	last_checked_at, last_success_at, fail_count`

func scanFeed(row rowScanner) (*model.Feed, error) {
	var f model.Feed
	if err := row.Scan(&f.ID, &f.URL, &f.Title, &f.Category, &f.Language, &f.FetchInterval, &f.IsActive,
		&f.Priority, &f.LastCheckedAt, &f.LastSuccessAt, &f.FailCount); err != nil {
		return nil, err
	}
	return &f, nil
}

const fingerprintColumns = `content_id, title_hash, body_hash, created_at, updated_at`

func scanFingerprint(row rowScanner) (*model.Fingerprint, error) {
	var fp model.Fingerprint
	if err := row.Scan(&fp.ContentID, &fp.TitleHash, &fp.BodyHash, &fp.CreatedAt, &fp.UpdatedAt); err != nil {
		return nil, err
	}
	return &fp, nil
}

const fingerprintStatsSQL = `SELECT
	(SELECT COUNT(*) FROM content_fingerprints),
	(SELECT COUNT(DISTINCT body_hash) FROM content_fingerprints),
	(SELECT COUNT(DISTINCT title_hash) FROM content_fingerprints),
	(SELECT COUNT(*) FROM (SELECT body_hash FROM content_fingerprints GROUP BY body_hash HAVING COUNT(*) > 1) b),
	(SELECT COUNT(*) FROM (SELECT title_hash FROM content_fingerprints GROUP BY title_hash HAVING COUNT(*) > 1) t)`

func scanStats(row rowScanner) (*model.DedupStats, error) {
	var s model.DedupStats
	if err := row.Scan(&s.TotalHashes, &s.UniqueBodies, &s.UniqueTitles, &s.DuplicateBodyGroups, &s.DuplicateTitleGroups); err != nil {
		return nil, err
	}
	return &s, nil
}

const dlqColumns = `id, job, error, error_type, retry_count, max_retries, next_retry_at, created_at, last_failed_at`

func scanDLQ(row rowScanner) (*entryRow, error) {
	var e entryRow
	if err := row.Scan(&e.ID, &e.job, &e.Error, &e.ErrorType, &e.RetryCount, &e.MaxRetries,
		&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(e.job, &e.Job); err != nil {
		return nil, eris.Wrapf(err, "store: decode dlq job %s", e.ID)
	}
	return &e, nil
}

type entryRow struct {
	resilience.DLQEntry
	job []byte
}

// The window placeholder is appended per dialect.
const importStatsSelect = `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(items_imported), 0),
	COALESCE(SUM(items_skipped), 0)
	FROM feed_imports WHERE created_at >= `

func scanImportStats(row rowScanner) (*model.ImportStats, error) {
	var s model.ImportStats
	if err := row.Scan(&s.Total, &s.Completed, &s.Failed, &s.Running, &s.ItemsImported, &s.ItemsSkipped); err != nil {
		return nil, err
	}
	return &s, nil
}

const generationStatsSelect = `SELECT COUNT(*), COALESCE(SUM(tokens_used), 0), COALESCE(SUM(cost), 0)
	FROM generations WHERE created_at >= `

func scanGenerationStats(row rowScanner) (*model.GenerationStats, error) {
	var s model.GenerationStats
	if err := row.Scan(&s.Calls, &s.Tokens, &s.CostUSD); err != nil {
		return nil, err
	}
	return &s, nil
}
