package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/affiliate"
	"github.com/hubizz/hubizz/internal/jobs"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/monitoring"
)

type mockDeduper struct{ mock.Mock }

func (m *mockDeduper) CheckDuplicate(ctx context.Context, title, body string) (*model.Verdict, error) {
	args := m.Called(ctx, title, body)
	v, _ := args.Get(0).(*model.Verdict)
	return v, args.Error(1)
}

func (m *mockDeduper) RecordFingerprint(ctx context.Context, contentID int64, title, body string) error {
	return m.Called(ctx, contentID, title, body).Error(0)
}

func (m *mockDeduper) FindSimilarTitles(ctx context.Context, title string, limit int) ([]model.SimilarTitle, error) {
	args := m.Called(ctx, title, limit)
	v, _ := args.Get(0).([]model.SimilarTitle)
	return v, args.Error(1)
}

type mockProducts struct{ mock.Mock }

func (m *mockProducts) ProductsForContent(ctx context.Context, id int64, opts ...affiliate.FindOption) ([]model.ProductMatch, error) {
	args := m.Called(ctx, id, len(opts))
	v, _ := args.Get(0).([]model.ProductMatch)
	return v, args.Error(1)
}

type fakeFeeds map[int64]*model.Feed

func (f fakeFeeds) GetFeed(_ context.Context, id int64) (*model.Feed, error) {
	return f[id], nil
}

type recordingQueue struct {
	jobs []model.Job
	err  error
}

func (q *recordingQueue) Submit(_ context.Context, job model.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeMetrics struct {
	hours int
	err   error
}

func (f *fakeMetrics) Collect(_ context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error) {
	f.hours = lookbackHours
	if f.err != nil {
		return nil, f.err
	}
	return &monitoring.MetricsSnapshot{ImportTotal: 3, DLQDepth: 1, LookbackHours: lookbackHours}, nil
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h := (&Server{}).Router()
	rr := do(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestDisabledRoutes(t *testing.T) {
	h := (&Server{}).Router()
	rr := do(t, h, http.MethodPost, "/v1/duplicates/check", checkRequest{Title: "a", Body: "b"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCheckDuplicate(t *testing.T) {
	d := new(mockDeduper)
	id := int64(7)
	d.On("CheckDuplicate", mock.Anything, "Title", "Body").Return(&model.Verdict{
		IsDuplicate: true, MatchedID: &id, Similarity: 100, MatchType: model.MatchTypeExact, Threshold: 85,
	}, nil)
	h := (&Server{Dedup: d}).Router()

	rr := do(t, h, http.MethodPost, "/v1/duplicates/check", checkRequest{Title: "Title", Body: "Body"})
	require.Equal(t, http.StatusOK, rr.Code)

	var v model.Verdict
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.True(t, v.IsDuplicate)
	require.NotNil(t, v.MatchedID)
	assert.Equal(t, int64(7), *v.MatchedID)
	assert.Equal(t, model.MatchTypeExact, v.MatchType)
	d.AssertExpectations(t)
}

func TestCheckDuplicate_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", model.Wrap(model.ErrInvalidInput, eris.New("title is empty")), http.StatusBadRequest},
		{"store down", model.Wrap(model.ErrStoreUnavailable, eris.New("conn refused")), http.StatusServiceUnavailable},
		{"other", eris.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := new(mockDeduper)
			d.On("CheckDuplicate", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)
			h := (&Server{Dedup: d}).Router()

			rr := do(t, h, http.MethodPost, "/v1/duplicates/check", checkRequest{Title: "t"})
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), `"error"`)
		})
	}
}

func TestCheckDuplicate_BadBody(t *testing.T) {
	h := (&Server{Dedup: new(mockDeduper)}).Router()
	req := httptest.NewRequest(http.MethodPost, "/v1/duplicates/check", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestRecordFingerprint(t *testing.T) {
	d := new(mockDeduper)
	d.On("RecordFingerprint", mock.Anything, int64(42), "T", "B").Return(nil)
	h := (&Server{Dedup: d}).Router()

	rr := do(t, h, http.MethodPost, "/v1/fingerprints", fingerprintRequest{ContentID: 42, Title: "T", Body: "B"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	d.AssertExpectations(t)
}

func TestRecordFingerprint_MissingContentID(t *testing.T) {
	d := new(mockDeduper)
	h := (&Server{Dedup: d}).Router()

	rr := do(t, h, http.MethodPost, "/v1/fingerprints", fingerprintRequest{Title: "T", Body: "B"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "content_id is required")
	d.AssertNotCalled(t, "RecordFingerprint", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSimilarTitles(t *testing.T) {
	d := new(mockDeduper)
	d.On("FindSimilarTitles", mock.Anything, "cats love boxes", 3).Return([]model.SimilarTitle{
		{ContentID: 1, Title: "Cats Love Boxes", Similarity: 100},
	}, nil)
	h := (&Server{Dedup: d}).Router()

	rr := do(t, h, http.MethodGet, "/v1/duplicates/similar?title=cats+love+boxes&limit=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Titles []model.SimilarTitle `json:"titles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Titles, 1)
	assert.Equal(t, int64(1), body.Titles[0].ContentID)
}

func TestSimilarTitles_Validation(t *testing.T) {
	h := (&Server{Dedup: new(mockDeduper)}).Router()

	rr := do(t, h, http.MethodGet, "/v1/duplicates/similar", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "title is required")

	rr = do(t, h, http.MethodGet, "/v1/duplicates/similar?title=x&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "limit must be an integer")
}

func TestSimilarTitles_EmptyIsArray(t *testing.T) {
	d := new(mockDeduper)
	d.On("FindSimilarTitles", mock.Anything, "x", 0).Return(nil, nil)
	h := (&Server{Dedup: d}).Router()

	rr := do(t, h, http.MethodGet, "/v1/duplicates/similar?title=x", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"titles":[]}`, rr.Body.String())
}

func TestDedupStats(t *testing.T) {
	stats := StatsFunc(func(context.Context) (*model.DedupStats, error) {
		return &model.DedupStats{TotalHashes: 10, UniqueTitles: 9, UniqueBodies: 8, DuplicatePercentage: 20}, nil
	})
	h := (&Server{Stats: stats}).Router()

	rr := do(t, h, http.MethodGet, "/v1/duplicates/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.DedupStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 10, got.TotalHashes)
	assert.InDelta(t, 20.0, got.DuplicatePercentage, 1e-9)
}

func newMatcher(t *testing.T) *affiliate.Matcher {
	t.Helper()
	rules, err := affiliate.DefaultRules()
	require.NoError(t, err)
	return affiliate.NewMatcher(rules)
}

func TestFindProducts(t *testing.T) {
	h := (&Server{Matcher: newMatcher(t)}).Router()

	rr := do(t, h, http.MethodPost, "/v1/products/find", map[string]any{
		"text": "The new iPhone 15 Pro is amazing, buy it now for the best price!",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var body matchesBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Matches)
	assert.Equal(t, "iPhone 15", body.Matches[0].Name)
}

func TestFindProducts_OptionsApplied(t *testing.T) {
	h := (&Server{Matcher: newMatcher(t)}).Router()

	rr := do(t, h, http.MethodPost, "/v1/products/find", map[string]any{
		"text":           "The new iPhone 15 Pro is amazing, buy it now for the best price!",
		"min_confidence": 1.01,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"matches":[]}`, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/v1/products/find", map[string]any{
		"text":        "The new iPhone 15 Pro and a laptop and a camera, buy it now!",
		"max_results": 1,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var body matchesBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Matches, 1)
}

func TestContentProducts(t *testing.T) {
	p := new(mockProducts)
	p.On("ProductsForContent", mock.Anything, int64(5), 2).Return([]model.ProductMatch{
		{Name: "iPhone 15", Source: model.SourcePattern, Category: "tech", Confidence: 0.9, MentionCount: 1},
	}, nil)
	h := (&Server{Products: p}).Router()

	rr := do(t, h, http.MethodGet, "/v1/contents/5/products?category=tech&max_results=3", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body matchesBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(5), body.ContentID)
	require.Len(t, body.Matches, 1)
	p.AssertExpectations(t)
}

func TestContentProducts_Errors(t *testing.T) {
	p := new(mockProducts)
	p.On("ProductsForContent", mock.Anything, int64(9), 0).
		Return(nil, model.Wrap(model.ErrNotFound, eris.New("content 9")))
	h := (&Server{Products: p}).Router()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/contents/9/products", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/contents/abc/products", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/contents/9/products?min_confidence=x", nil).Code)
}

func TestImportFeed(t *testing.T) {
	q := &recordingQueue{}
	feeds := fakeFeeds{3: {ID: 3, URL: "https://example.com/rss", IsActive: true}}
	h := (&Server{Feeds: feeds, Jobs: q}).Router()

	rr := do(t, h, http.MethodPost, "/v1/feeds/3/import", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"status":"accepted","feed_id":3}`, rr.Body.String())

	require.Len(t, q.jobs, 1)
	assert.Equal(t, model.JobImportFeed, q.jobs[0].Kind)
	var p jobs.ImportFeedPayload
	require.NoError(t, json.Unmarshal(q.jobs[0].Payload, &p))
	assert.Equal(t, int64(3), p.FeedID)
}

func TestImportFeed_UnknownFeed(t *testing.T) {
	q := &recordingQueue{}
	h := (&Server{Feeds: fakeFeeds{}, Jobs: q}).Router()

	rr := do(t, h, http.MethodPost, "/v1/feeds/99/import", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, q.jobs)
}

func TestImportFeed_QueueFull(t *testing.T) {
	q := &recordingQueue{err: eris.Wrap(jobs.ErrQueueFull, "jobs: submit import_feed")}
	h := (&Server{Jobs: q}).Router()

	rr := do(t, h, http.MethodPost, "/v1/feeds/1/import", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetrics(t *testing.T) {
	fm := &fakeMetrics{}
	h := (&Server{Metrics: fm, MetricsLookbackHours: 6}).Router()

	rr := do(t, h, http.MethodGet, "/v1/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 6, fm.hours)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 3, snap.ImportTotal)
	assert.Equal(t, 1, snap.DLQDepth)

	rr = do(t, h, http.MethodGet, "/v1/metrics?hours=48", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 48, fm.hours)
}

func TestMetrics_Errors(t *testing.T) {
	h := (&Server{Metrics: &fakeMetrics{}}).Router()
	rr := do(t, h, http.MethodGet, "/v1/metrics?hours=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	h = (&Server{Metrics: &fakeMetrics{err: eris.New("db down")}}).Router()
	rr = do(t, h, http.MethodGet, "/v1/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCORS_Preflight(t *testing.T) {
	h := (&Server{Dedup: new(mockDeduper), CORSOrigins: []string{"https://hubizz.com"}}).Router()

	req := httptest.NewRequest(http.MethodOptions, "/v1/duplicates/check", nil)
	req.Header.Set("Origin", "https://hubizz.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://hubizz.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(model.Wrap(model.ErrInvalidInput, eris.New("x"))))
	assert.Equal(t, http.StatusNotFound, statusFor(model.ErrNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(eris.Wrap(model.ErrStoreUnavailable, "db")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(jobs.ErrQueueFull))
	assert.Equal(t, http.StatusInternalServerError, statusFor(eris.New("x")))
}

func TestServe_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, (&Server{}).Router(), port) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/health"
	var ready bool
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
