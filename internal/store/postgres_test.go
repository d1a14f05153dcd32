package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

var _ Store = (*PostgresStore)(nil)

var fixedNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock, now: func() time.Time { return fixedNow }}, mock
}

func TestPostgres_Ping(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, st.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS contents").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateContent(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	anyArg := pgxmock.AnyArg()
	mock.ExpectQuery(`(?s)INSERT INTO contents .* RETURNING id`).
		WithArgs("t", "", "b", "", "", "", "", "", "", anyArg, "", anyArg, anyArg, fixedNow, fixedNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	c := &model.Content{Title: "t", Body: "b"}
	require.NoError(t, st.CreateContent(context.Background(), c))
	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, fixedNow, c.CreatedAt)
	assert.Equal(t, fixedNow, c.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ContentExists(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contents WHERE source_url = \$1\)`).
		WithArgs("https://example.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM contents WHERE source_guid = \$1\)`).
		WithArgs("guid-7").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := st.ContentExistsBySourceURL(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.ContentExistsByGUID(context.Background(), "guid-7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ContentExists_Error(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(errors.New("connection reset"))

	_, err := st.ContentExistsBySourceURL(context.Background(), "https://example.com/a")
	assert.ErrorContains(t, err, "content exists by source url")
}

func TestPostgres_FindFingerprint(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM content_fingerprints WHERE title_hash = \$1`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"content_id", "title_hash", "body_hash", "created_at", "updated_at"}).
			AddRow(int64(3), "abc", "def", created, created))
	mock.ExpectQuery(`FROM content_fingerprints WHERE body_hash = \$1`).
		WithArgs("zzz").
		WillReturnError(pgx.ErrNoRows)

	fp, err := st.FindFingerprintByTitleHash(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, fp)
	assert.Equal(t, int64(3), fp.ContentID)
	assert.Equal(t, "def", fp.BodyHash)

	fp, err = st.FindFingerprintByBodyHash(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Nil(t, fp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertFingerprint(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec(`(?s)INSERT INTO content_fingerprints .* ON CONFLICT \(content_id\) DO UPDATE`).
		WithArgs(int64(5), "t", "b", fixedNow, fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := st.UpsertFingerprint(context.Background(), &model.Fingerprint{
		ContentID: 5, TitleHash: "t", BodyHash: "b", CreatedAt: fixedNow, UpdatedAt: fixedNow,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteOrphanedFingerprints(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec(`DELETE FROM content_fingerprints f WHERE f.created_at < \$1\s+AND NOT EXISTS`).
		WithArgs(fixedNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := st.DeleteOrphanedFingerprints(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveProductMatches(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	cols := []string{"content_id", "position", "name", "source", "category", "confidence", "catalog_id", "mention_count"}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM content_products WHERE content_id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectCopyFrom(pgx.Identifier{"content_products"}, cols).WillReturnResult(2)
	mock.ExpectCommit()

	err := st.SaveProductMatches(context.Background(), 1, []model.ProductMatch{
		{Name: "iPhone 15", Source: model.SourcePattern, Category: "tech", Confidence: 0.9, MentionCount: 1},
		{Name: "Kindle", Source: model.SourceCatalogName, Category: "tech", Confidence: 0.8, MentionCount: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveProductMatches_EmptyOnlyClears(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM content_products`).
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, st.SaveProductMatches(context.Background(), 1, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateFeedCheck_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE feeds SET last_checked_at`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateFeedCheck(context.Background(), &model.Feed{ID: 9})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateImport(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	anyArg := pgxmock.AnyArg()
	mock.ExpectExec(`UPDATE feed_imports SET status = \$1`).
		WithArgs("completed", 0, 0, 0, anyArg, "", anyArg, anyArg, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdateImport(context.Background(), &model.ImportRecord{ID: "run-1", Status: model.ImportStatusCompleted})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetImport(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM feed_imports WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "feed_id", "status", "items_found", "items_imported",
			"items_skipped", "log", "error", "started_at", "completed_at", "created_at"}).
			AddRow("run-1", int64(3), "completed", 2, 1, 1,
				[]byte(`[{"title":"a","status":"imported"},{"title":"b","status":"skipped","reason":"URL already imported"}]`),
				"", &fixedNow, &fixedNow, fixedNow))

	rec, err := st.GetImport(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ImportStatusCompleted, rec.Status)
	require.Len(t, rec.Log, 2)
	assert.Equal(t, "URL already imported", rec.Log[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetImport_Missing(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM feed_imports WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	rec, err := st.GetImport(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPostgres_SetContentImage_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE contents SET image_url = \$1`).
		WithArgs("https://cdn/x.jpg", fixedNow, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.SetContentImage(context.Background(), 9, "https://cdn/x.jpg")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPostgres_CountDLQ(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dead_letter_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := st.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListDLQ_BuildsPlaceholders(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`WHERE true AND next_retry_at <= \$1 AND retry_count < max_retries AND error_type = \$2 ORDER BY next_retry_at ASC LIMIT \$3`).
		WithArgs(fixedNow, resilience.ErrorTypeTransient, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "job", "error", "error_type", "retry_count", "max_retries",
			"next_retry_at", "created_at", "last_failed_at"}).
			AddRow("e1", []byte(`{"kind":"import_feed","payload":{"feed_id":2}}`), "timeout", "transient", 1, 3,
				fixedNow, fixedNow, fixedNow))

	got, err := st.ListDLQ(context.Background(), resilience.DLQFilter{DueOnly: true, ErrorType: resilience.ErrorTypeTransient})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, model.JobImportFeed, got[0].Job.Kind)
	assert.Equal(t, 1, got[0].RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_IncrementDLQRetry_NotFound(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectExec(`UPDATE dead_letter_queue`).
		WithArgs(fixedNow, "boom", fixedNow, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.IncrementDLQRetry(context.Background(), "missing", fixedNow, "boom")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ImportStats(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	since := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(`(?s)FROM feed_imports WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"total", "completed", "failed", "running", "imported", "skipped"}).
			AddRow(5, 3, 1, 1, 12, 4))

	got, err := st.ImportStats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, model.ImportStats{Total: 5, Completed: 3, Failed: 1, Running: 1, ItemsImported: 12, ItemsSkipped: 4}, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GenerationStats(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	since := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(`(?s)FROM generations WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"calls", "tokens", "cost"}).AddRow(4, 5200, 1.75))

	got, err := st.GenerationStats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Calls)
	assert.Equal(t, 5200, got.Tokens)
	assert.InDelta(t, 1.75, got.CostUSD, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GenerationStats_Error(t *testing.T) {
	st, mock := newMockPostgresStore(t)
	mock.ExpectQuery(`FROM generations`).WillReturnError(errors.New("conn reset"))

	_, err := st.GenerationStats(context.Background(), fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: generation stats")
}
