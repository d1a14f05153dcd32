package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/db"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on every new connection. They cover the
// lookups made once per imported item.
var preparedStatements = map[string]string{
	"fingerprint_by_title": `SELECT ` + fingerprintColumns + ` FROM content_fingerprints WHERE title_hash = $1 ORDER BY content_id LIMIT 1`,
	"fingerprint_by_body":  `SELECT ` + fingerprintColumns + ` FROM content_fingerprints WHERE body_hash = $1 ORDER BY content_id LIMIT 1`,
	"content_by_url":       `SELECT EXISTS (SELECT 1 FROM contents WHERE source_url = $1)`,
	"content_by_guid":      `SELECT EXISTS (SELECT 1 FROM contents WHERE source_guid = $1)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, model.Wrap(model.ErrConfiguration, eris.Wrap(err, "postgres: parse config"))
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "postgres: create pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "postgres: ping"))
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contents (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL,
	slug         TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL,
	excerpt      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT 'en',
	status       TEXT NOT NULL DEFAULT 'draft',
	source_url   TEXT NOT NULL DEFAULT '',
	source_guid  TEXT NOT NULL DEFAULT '',
	feed_id      BIGINT,
	image_url    TEXT NOT NULL DEFAULT '',
	metadata     JSONB NOT NULL DEFAULT '{}',
	published_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contents_created_at ON contents(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contents_source_url ON contents(source_url) WHERE source_url <> '';
CREATE INDEX IF NOT EXISTS idx_contents_source_guid ON contents(source_guid) WHERE source_guid <> '';

CREATE TABLE IF NOT EXISTS content_fingerprints (
	content_id BIGINT PRIMARY KEY REFERENCES contents(id) ON DELETE CASCADE,
	title_hash CHAR(64) NOT NULL,
	body_hash  CHAR(64) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_fingerprints_title_hash ON content_fingerprints(title_hash);
CREATE INDEX IF NOT EXISTS idx_fingerprints_body_hash ON content_fingerprints(body_hash);

CREATE TABLE IF NOT EXISTS product_catalog (
	id        BIGINT PRIMARY KEY,
	name      TEXT NOT NULL,
	category  TEXT NOT NULL DEFAULT '',
	keywords  TEXT[] NOT NULL DEFAULT '{}',
	is_active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS content_products (
	content_id    BIGINT NOT NULL,
	position      INTEGER NOT NULL,
	name          TEXT NOT NULL,
	source        TEXT NOT NULL,
	category      TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	catalog_id    BIGINT,
	mention_count INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (content_id, position)
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS feeds (
	id              BIGSERIAL PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT 'en',
	fetch_interval  TEXT NOT NULL DEFAULT 'hourly',
	is_active       BOOLEAN NOT NULL DEFAULT true,
	priority        INTEGER NOT NULL DEFAULT 0,
	last_checked_at TIMESTAMPTZ,
	last_success_at TIMESTAMPTZ,
	fail_count      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feed_imports (
	id             TEXT PRIMARY KEY,
	feed_id        BIGINT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	items_found    INTEGER NOT NULL DEFAULT 0,
	items_imported INTEGER NOT NULL DEFAULT 0,
	items_skipped  INTEGER NOT NULL DEFAULT 0,
	log            JSONB NOT NULL DEFAULT '[]',
	error          TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_feed_imports_feed_id ON feed_imports(feed_id);

CREATE TABLE IF NOT EXISTS generations (
	id          TEXT PRIMARY KEY,
	content_id  BIGINT,
	kind        TEXT NOT NULL,
	provider    TEXT NOT NULL,
	model       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	job            JSONB NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_dlq_next_retry ON dead_letter_queue(next_retry_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *PostgresStore) CreateContent(ctx context.Context, c *model.Content) error {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	now := s.clock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	err = s.pool.QueryRow(ctx,
		`INSERT INTO contents (title, slug, body, excerpt, category, language, status, source_url, source_guid,
		 feed_id, image_url, metadata, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		c.Title, c.Slug, c.Body, c.Excerpt, c.Category, c.Language, string(c.Status), c.SourceURL, c.SourceGUID,
		c.FeedID, c.ImageURL, meta, c.PublishedAt, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	return eris.Wrap(err, "postgres: insert content")
}

func (s *PostgresStore) GetContent(ctx context.Context, id int64) (*model.Content, error) {
	c, err := scanContent(s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get content %d", id)
	}
	return c, nil
}

func (s *PostgresStore) SetContentImage(ctx context.Context, id int64, imageURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contents SET image_url = $1, updated_at = $2 WHERE id = $3`, imageURL, s.clock(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set content image %d", id)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.ErrNotFound, eris.Errorf("postgres: content %d", id))
	}
	return nil
}

func (s *PostgresStore) exists(ctx context.Context, stmt, arg, what string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, stmt, arg).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "postgres: content exists by %s", what)
	}
	return ok, nil
}

func (s *PostgresStore) ContentExistsBySourceURL(ctx context.Context, url string) (bool, error) {
	return s.exists(ctx, preparedStatements["content_by_url"], url, "source url")
}

func (s *PostgresStore) ContentExistsByGUID(ctx context.Context, guid string) (bool, error) {
	return s.exists(ctx, preparedStatements["content_by_guid"], guid, "guid")
}

func (s *PostgresStore) ListRecentContent(ctx context.Context, since time.Time, limit int) ([]model.RecentContent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, body, created_at FROM contents
		 WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		since.UTC(), limitOrDefault(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent content")
	}
	defer rows.Close()

	var out []model.RecentContent
	for rows.Next() {
		var rc model.RecentContent
		if err := rows.Scan(&rc.ID, &rc.Title, &rc.Body, &rc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recent content")
		}
		out = append(out, rc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list recent content iterate")
}

// SaveProductMatches replaces the stored matches of a content item.
func (s *PostgresStore) SaveProductMatches(ctx context.Context, contentID int64, matches []model.ProductMatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save product matches")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM content_products WHERE content_id = $1`, contentID); err != nil {
		return eris.Wrapf(err, "postgres: clear product matches %d", contentID)
	}
	if len(matches) > 0 {
		rows := make([][]any, len(matches))
		for i, m := range matches {
			rows[i] = []any{contentID, i, m.Name, string(m.Source), m.Category, m.Confidence, m.CatalogID, m.MentionCount}
		}
		cols := []string{"content_id", "position", "name", "source", "category", "confidence", "catalog_id", "mention_count"}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"content_products"}, cols, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: copy product matches %d", contentID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit product matches")
}

func (s *PostgresStore) ListProductMatches(ctx context.Context, contentID int64) ([]model.ProductMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, source, category, confidence, catalog_id, mention_count
		 FROM content_products WHERE content_id = $1 ORDER BY position`,
		contentID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list product matches %d", contentID)
	}
	defer rows.Close()

	var out []model.ProductMatch
	for rows.Next() {
		var m model.ProductMatch
		if err := rows.Scan(&m.Name, &m.Source, &m.Category, &m.Confidence, &m.CatalogID, &m.MentionCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list product matches iterate")
}

func (s *PostgresStore) findFingerprint(ctx context.Context, stmt, hash string) (*model.Fingerprint, error) {
	fp, err := scanFingerprint(s.pool.QueryRow(ctx, stmt, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find fingerprint")
	}
	return fp, nil
}

func (s *PostgresStore) FindFingerprintByTitleHash(ctx context.Context, hash string) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, preparedStatements["fingerprint_by_title"], hash)
}

func (s *PostgresStore) FindFingerprintByBodyHash(ctx context.Context, hash string) (*model.Fingerprint, error) {
	return s.findFingerprint(ctx, preparedStatements["fingerprint_by_body"], hash)
}

// UpsertFingerprint inserts or replaces the digests of fp.ContentID. The
// original created_at survives a replace.
func (s *PostgresStore) UpsertFingerprint(ctx context.Context, fp *model.Fingerprint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_fingerprints (content_id, title_hash, body_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (content_id) DO UPDATE SET title_hash = EXCLUDED.title_hash,
		   body_hash = EXCLUDED.body_hash, updated_at = EXCLUDED.updated_at`,
		fp.ContentID, fp.TitleHash, fp.BodyHash, fp.CreatedAt.UTC(), fp.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert fingerprint %d", fp.ContentID)
}

func (s *PostgresStore) FingerprintStats(ctx context.Context) (*model.DedupStats, error) {
	st, err := scanStats(s.pool.QueryRow(ctx, fingerprintStatsSQL))
	return st, eris.Wrap(err, "postgres: fingerprint stats")
}

func (s *PostgresStore) DeleteOrphanedFingerprints(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM content_fingerprints f WHERE f.created_at < $1
		 AND NOT EXISTS (SELECT 1 FROM contents c WHERE c.id = f.content_id)`,
		before.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete orphaned fingerprints")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListActiveCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, keywords, is_active FROM product_catalog WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog")
	}
	defer rows.Close()

	var out []model.CatalogEntry
	for rows.Next() {
		var e model.CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Category, &e.Keywords, &e.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list catalog iterate")
}

func (s *PostgresStore) UpsertCatalogEntries(ctx context.Context, entries []model.CatalogEntry) (int64, error) {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		kw := e.Keywords
		if kw == nil {
			kw = []string{}
		}
		rows[i] = []any{e.ID, e.Name, e.Category, kw, e.IsActive}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "product_catalog",
		Columns:      []string{"id", "name", "category", "keywords", "is_active"},
		ConflictKeys: []string{"id"},
	}, rows)
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c *model.Category) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (name, slug) VALUES ($1, $2)
		 ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name RETURNING id`,
		c.Name, c.Slug,
	).Scan(&c.ID)
	return eris.Wrapf(err, "postgres: create category %s", c.Slug)
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug FROM categories ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list categories iterate")
}

func (s *PostgresStore) CreateFeed(ctx context.Context, f *model.Feed) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO feeds (url, title, category, language, fetch_interval, is_active, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		f.URL, f.Title, f.Category, f.Language, string(f.FetchInterval), f.IsActive, f.Priority,
	).Scan(&f.ID)
	return eris.Wrapf(err, "postgres: create feed %s", f.URL)
}

func (s *PostgresStore) GetFeed(ctx context.Context, id int64) (*model.Feed, error) {
	f, err := scanFeed(s.pool.QueryRow(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get feed %d", id)
	}
	return f, nil
}

func (s *PostgresStore) ListFeeds(ctx context.Context, activeOnly bool) ([]model.Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY priority DESC, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feeds")
	}
	defer rows.Close()

	var out []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan feed")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list feeds iterate")
}

func (s *PostgresStore) UpdateFeedCheck(ctx context.Context, f *model.Feed) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE feeds SET last_checked_at = $1, last_success_at = $2, fail_count = $3 WHERE id = $4`,
		f.LastCheckedAt, f.LastSuccessAt, f.FailCount, f.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update feed check %d", f.ID)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.ErrNotFound, eris.Errorf("postgres: feed %d", f.ID))
	}
	return nil
}

func (s *PostgresStore) CreateImport(ctx context.Context, rec *model.ImportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock()
	}
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal import log")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO feed_imports (id, feed_id, status, items_found, items_imported, items_skipped, log, error,
		 started_at, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.FeedID, string(rec.Status), rec.ItemsFound, rec.ItemsImported, rec.ItemsSkipped, logJSON,
		rec.Error, rec.StartedAt, rec.CompletedAt, rec.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: create import %s", rec.ID)
}

func (s *PostgresStore) UpdateImport(ctx context.Context, rec *model.ImportRecord) error {
	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal import log")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE feed_imports SET status = $1, items_found = $2, items_imported = $3, items_skipped = $4,
		 log = $5, error = $6, started_at = $7, completed_at = $8 WHERE id = $9`,
		string(rec.Status), rec.ItemsFound, rec.ItemsImported, rec.ItemsSkipped, logJSON, rec.Error,
		rec.StartedAt, rec.CompletedAt, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update import %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.ErrNotFound, eris.Errorf("postgres: import %s", rec.ID))
	}
	return nil
}

func (s *PostgresStore) GetImport(ctx context.Context, id string) (*model.ImportRecord, error) {
	var rec model.ImportRecord
	var status string
	var logJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, feed_id, status, items_found, items_imported, items_skipped, log, error,
		 started_at, completed_at, created_at FROM feed_imports WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.FeedID, &status, &rec.ItemsFound, &rec.ItemsImported, &rec.ItemsSkipped,
		&logJSON, &rec.Error, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get import %s", id)
	}
	rec.Status = model.ImportStatus(status)
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &rec.Log); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode import log %s", id)
		}
	}
	return &rec, nil
}

func (s *PostgresStore) RecordGeneration(ctx context.Context, g *model.Generation) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.clock()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO generations (id, content_id, kind, provider, model, prompt, tokens_used, cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.ContentID, g.Kind, g.Provider, g.Model, g.Prompt, g.TokensUsed, g.Cost, g.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record generation")
}

func (s *PostgresStore) ImportStats(ctx context.Context, since time.Time) (*model.ImportStats, error) {
	st, err := scanImportStats(s.pool.QueryRow(ctx, importStatsSelect+"$1", since.UTC()))
	return st, eris.Wrap(err, "postgres: import stats")
}

func (s *PostgresStore) GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error) {
	st, err := scanGenerationStats(s.pool.QueryRow(ctx, generationStatsSelect+"$1", since.UTC()))
	return st, eris.Wrap(err, "postgres: generation stats")
}

// Dead letter queue methods

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	jobJSON, err := json.Marshal(entry.Job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq job")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue (`+dlqColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET error = $3, error_type = $4, retry_count = $5,
		   next_retry_at = $7, last_failed_at = $9`,
		entry.ID, jobJSON, entry.Error, entry.ErrorType, entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE true`
	var args []any
	if filter.DueOnly {
		args = append(args, s.clock())
		query += fmt.Sprintf(` AND next_retry_at <= $%d AND retry_count < max_retries`, len(args))
	}
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		query += fmt.Sprintf(` AND error_type = $%d`, len(args))
	}
	args = append(args, limitOrDefault(filter.Limit))
	query += fmt.Sprintf(` ORDER BY next_retry_at ASC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		e, err := scanDLQ(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		out = append(out, e.DLQEntry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list dlq iterate")
}

func (s *PostgresStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = $3
		 WHERE id = $4`,
		nextRetryAt, lastErr, s.clock(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment dlq retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.Wrap(model.ErrNotFound, eris.Errorf("postgres: dlq entry %s", id))
	}
	return nil
}

func (s *PostgresStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "postgres: count dlq")
}
