package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and single-node deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Foreign keys are enabled on every pooled connection through the DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withForeignKeys(dsn))
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "sqlite: open"))
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "sqlite: exec %s", pragma))
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func withForeignKeys(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL,
	slug         TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	excerpt      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT 'en',
	status       TEXT NOT NULL DEFAULT 'draft',
	source_url   TEXT NOT NULL DEFAULT '',
	source_guid  TEXT NOT NULL DEFAULT '',
	feed_id      INTEGER,
	image_url    TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	published_at DATETIME,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contents_created_at ON contents(created_at);
CREATE INDEX IF NOT EXISTS idx_contents_source_url ON contents(source_url);
CREATE INDEX IF NOT EXISTS idx_contents_source_guid ON contents(source_guid);

CREATE TABLE IF NOT EXISTS content_fingerprints (
	content_id INTEGER PRIMARY KEY REFERENCES contents(id) ON DELETE CASCADE,
	title_hash TEXT NOT NULL,
	body_hash  TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_title_hash ON content_fingerprints(title_hash);
CREATE INDEX IF NOT EXISTS idx_fingerprints_body_hash ON content_fingerprints(body_hash);

CREATE TABLE IF NOT EXISTS product_catalog (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	keywords  TEXT NOT NULL DEFAULT '[]',
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS content_products (
	content_id    INTEGER NOT NULL,
	position      INTEGER NOT NULL,
	name          TEXT NOT NULL,
	source        TEXT NOT NULL,
	category      TEXT NOT NULL,
	confidence    REAL NOT NULL,
	catalog_id    INTEGER,
	mention_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (content_id, position)
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS feeds (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	url             TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT 'en',
	fetch_interval  TEXT NOT NULL DEFAULT 'hourly',
	is_active       INTEGER NOT NULL DEFAULT 1,
	priority        INTEGER NOT NULL DEFAULT 0,
	last_checked_at DATETIME,
	last_success_at DATETIME,
	fail_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feed_imports (
	id             TEXT PRIMARY KEY,
	feed_id        INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	items_found    INTEGER NOT NULL DEFAULT 0,
	items_imported INTEGER NOT NULL DEFAULT 0,
	items_skipped  INTEGER NOT NULL DEFAULT 0,
	log            TEXT NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL DEFAULT '',
	started_at     DATETIME,
	completed_at   DATETIME,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS generations (
	id          TEXT PRIMARY KEY,
	content_id  INTEGER,
	kind        TEXT NOT NULL,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	cost        REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	job            TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL,
	last_failed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) clock() time.Time {
	return s.now().UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.Wrap(model.ErrNotFound, eris.Errorf("sqlite: %s %s", entity, id))
	}
	return nil
}

func (s *SQLiteStore) CreateContent(ctx context.Context, c *model.Content) error {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	now := s.clock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (title, slug, body, excerpt, category, language, status, source_url, source_guid,
		 feed_id, image_url, metadata, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Title, c.Slug, c.Body, c.Excerpt, c.Category, c.Language, string(c.Status), c.SourceURL, c.SourceGUID,
		c.FeedID, c.ImageURL, string(meta), utcPtr(c.PublishedAt), c.CreatedAt.UTC(), c.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert content")
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: content id")
}

func (s *SQLiteStore) GetContent(ctx context.Context, id int64) (*model.Content, error) {
	c, err := scanContent(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get content %d", id)
	}
	return c, nil
}

func (s *SQLiteStore) SetContentImage(ctx context.Context, id int64, imageURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contents SET image_url = ?, updated_at = ? WHERE id = ?`, imageURL, s.clock(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set content image %d", id)
	}
	return checkRowsAffected(res, "content", strconv.FormatInt(id, 10))
}

func (s *SQLiteStore) ContentExistsBySourceURL(ctx context.Context, url string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contents WHERE source_url = ?)`, url).Scan(&ok)
	return ok, eris.Wrap(err, "sqlite: content exists by source url")
}

func (s *SQLiteStore) ContentExistsByGUID(ctx context.Context, guid string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM contents WHERE source_guid = ?)`, guid).Scan(&ok)
	return ok, eris.Wrap(err, "sqlite: content exists by guid")
}

func (s *SQLiteStore) ListRecentContent(ctx context.Context, since time.Time, limit int) ([]model.RecentContent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, body, created_at FROM contents
		 WHERE created_at >= ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		since.UTC(), limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent content")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RecentContent
	for rows.Next() {
		var rc model.RecentContent
		if err := rows.Scan(&rc.ID, &rc.Title, &rc.Body, &rc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recent content")
		}
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list recent content iterate")
}

func (s *SQLiteStore) SaveProductMatches(ctx context.Context, contentID int64, matches []model.ProductMatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save product matches")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM content_products WHERE content_id = ?`, contentID); err != nil {
		return eris.Wrapf(err, "sqlite: clear product matches %d", contentID)
	}
	for i, m := range matches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_products (content_id, position, name, source, category, confidence, catalog_id, mention_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			contentID, i, m.Name, string(m.Source), m.Category, m.Confidence, m.CatalogID, m.MentionCount,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert product match %d/%d", contentID, i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit product matches")
}

func (s *SQLiteStore) ListProductMatches(ctx context.Context, contentID int64) ([]model.ProductMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, source, category, confidence, catalog_id, mention_count
		 FROM content_products WHERE content_id = ? ORDER BY position`,
		contentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list product matches %d", contentID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProductMatch
	for rows.Next() {
		var m model.ProductMatch
		if err := rows.Scan(&m.Name, &m.Source, &m.Category, &m.Confidence, &m.CatalogID, &m.MentionCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list product matches iterate")
}

func (s *SQLiteStore) findFingerprint(ctx context.Context, column, hash string) (*model.Fingerprint, error) {
	fp, err := scanFingerprint(s.db.QueryRowContext(ctx,
		`SELECT `+fingerprintColumns+` FROM content_fingerprints WHERE `+column+` = ? ORDER BY content_id LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find fingerprint by %s", column)
	}
	return fp, nil
}

func (s *SQLiteStore) FindFingerprintByTitleHash(ctx context.Context, hash string) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, "title_hash", hash)
}

func (s *SQLiteStore) FindFingerprintByBodyHash(ctx context.Context, hash string) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, "body_hash", hash)
}

func (s *SQLiteStore) UpsertFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_fingerprints (content_id, title_hash, body_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (content_id) DO UPDATE SET title_hash = excluded.title_hash,
		   body_hash = excluded.body_hash, updated_at = excluded.updated_at`,
		fp.ContentID, fp.TitleHash, fp.BodyHash, fp.CreatedAt.UTC(), fp.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert fingerprint %d", fp.ContentID)
}

func (s *SQLiteStore) FingerprintStats(ctx context.Context) (*model.DedupStats, error) {
	st, err := scanStats(s.db.QueryRowContext(ctx, fingerprintStatsSQL))
	return st, eris.Wrap(err, "sqlite: fingerprint stats")
}

func (s *SQLiteStore) DeleteOrphanedFingerprints(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM content_fingerprints WHERE created_at < ?
		 AND content_id NOT IN (SELECT id FROM contents)`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete orphaned fingerprints")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListActiveCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, keywords, is_active FROM product_catalog WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		var kw string
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &kw, &e.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog entry")
		}
		if err := json.Unmarshal([]byte(kw), &e.Keywords); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode keywords of catalog entry %d", e.ID)
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list catalog iterate")
}

func (s *SQLiteStore) UpsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin catalog upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, e := range entries {
		kw := e.Keywords
		if kw == nil {
			kw = []string{}
		}
		kwJSON, err := json.Marshal(kw)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: encode keywords")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_catalog (id, name, category, keywords, is_active) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category,
			   keywords = excluded.keywords, is_active = excluded.is_active`,
			e.ID, e.Name, e.Category, string(kwJSON), e.IsActive,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert catalog entry %d", e.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit catalog upsert")
	}
	return n, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, c *model.Category) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name, slug) VALUES (?, ?)
		 ON CONFLICT (slug) DO UPDATE SET name = excluded.name RETURNING id`,
		c.Name, c.Slug,
	).Scan(&c.ID)
	return eris.Wrapf(err, "sqlite: create category %s", c.Slug)
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list categories iterate")
}

func (s *SQLiteStore) CreateFeed(ctx context.Context, f *model.Feed) error {
	if f.FetchInterval == "" {
		f.FetchInterval = model.FetchHourly
	}
	if f.Language == "" {
		f.Language = "en"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (url, title, category, language, fetch_interval, is_active, priority)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.URL, f.Title, f.Category, f.Language, string(f.FetchInterval), f.IsActive, f.Priority,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create feed %s", f.URL)
	}
	f.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: feed id")
}

func (s *SQLiteStore) GetFeed(ctx context.Context, id int64) (*model.Feed, error) {
	f, err := scanFeed(s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get feed %d", id)
	}
	return f, nil
}

func (s *SQLiteStore) ListFeeds(ctx context.Context, activeOnly bool) ([]model.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY priority DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feeds")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feed")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list feeds iterate")
}

func (s *SQLiteStore) UpdateFeedCheck(ctx context.Context, f *model.Feed) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET last_checked_at = ?, last_success_at = ?, fail_count = ? WHERE id = ?`,
		utcPtr(f.LastCheckedAt), utcPtr(f.LastSuccessAt), f.FailCount, f.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update feed check %d", f.ID)
	}
	return checkRowsAffected(res, "feed", strconv.FormatInt(f.ID, 10))
}

func (s *SQLiteStore) CreateImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal import log")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feed_imports (id, feed_id, status, items_found, items_imported, items_skipped, log, error,
		 started_at, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FeedID, string(rec.Status), rec.ItemsFound, rec.ItemsImported, rec.ItemsSkipped,
		string(logJSON), rec.Error, utcPtr(rec.StartedAt), utcPtr(rec.CompletedAt), rec.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: create import %s", rec.ID)
}

func (s *SQLiteStore) UpdateImport(ctx context.Context, rec *model.ImportRecord) error {
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal import log")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE feed_imports SET status = ?, items_found = ?, items_imported = ?, items_skipped = ?,
		 log = ?, error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
		string(rec.Status), rec.ItemsFound, rec.ItemsImported, rec.ItemsSkipped, string(logJSON), rec.Error,
		utcPtr(rec.StartedAt), utcPtr(rec.CompletedAt), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update import %s", rec.ID)
	}
	return checkRowsAffected(res, "import", rec.ID)
}

func (s *SQLiteStore) GetImport(ctx context.Context, id string) (*model.ImportRecord, error) {
	var rec model.ImportRecord
	var logJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, feed_id, status, items_found, items_imported, items_skipped, log, error,
		 started_at, completed_at, created_at FROM feed_imports WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.FeedID, &rec.Status, &rec.ItemsFound, &rec.ItemsImported, &rec.ItemsSkipped,
		&logJSON, &rec.Error, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get import %s", id)
	}
	if err := json.Unmarshal([]byte(logJSON), &rec.Log); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode import log %s", id)
	}
	return &rec, nil
}

func (s *SQLiteStore) RecordGeneration(ctx context.Context, g *model.Generation) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, content_id, kind, provider, model, prompt, tokens_used, cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.ContentID, g.Kind, g.Provider, g.Model, g.Prompt, g.TokensUsed, g.Cost, g.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: record generation")
}

func (s *SQLiteStore) ImportStats(ctx context.Context, since time.Time) (*model.ImportStats, error) {
	st, err := scanImportStats(s.db.QueryRowContext(ctx, importStatsSelect+"?", since.UTC()))
	return st, eris.Wrap(err, "sqlite: import stats")
}

func (s *SQLiteStore) GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error) {
	st, err := scanGenerationStats(s.db.QueryRowContext(ctx, generationStatsSelect+"?", since.UTC()))
	return st, eris.Wrap(err, "sqlite: generation stats")
}

// Dead letter queue methods

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	jobJSON, err := json.Marshal(entry.Job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq job")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (`+dlqColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET error = excluded.error, error_type = excluded.error_type,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, string(jobJSON), entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt.UTC(), entry.CreatedAt.UTC(), entry.LastFailedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE 1 = 1`
	var args []any
	if filter.DueOnly {
		query += ` AND next_retry_at <= ? AND retry_count < max_retries`
		args = append(args, s.clock())
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY next_retry_at ASC LIMIT ?`
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close() //nolint:errcheck

	var out []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		out = append(out, e.DLQEntry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list dlq iterate")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt.UTC(), lastErr, s.clock(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment dlq retry %s", id)
	}
	return checkRowsAffected(res, "dlq entry", id)
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}
