package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/fetcher"
	"github.com/hubizz/hubizz/internal/model"
)

func testOptions() Options {
	return Options{MaxItems: 50, MinContentLength: 100, MaxContentLength: 10000}
}

func TestAggregator_Fetch(t *testing.T) {
	g := &fakeGetter{pages: map[string]*fetcher.Response{
		"https://gear.example.com/feed": page("application/rss+xml", rssFixture),
	}}
	agg := NewAggregator(g, testOptions())

	res, err := agg.Fetch(context.Background(), "https://gear.example.com/feed")
	require.NoError(t, err)

	assert.Equal(t, "rss", res.Type)
	assert.Equal(t, "Gear Weekly", res.Info.Title)
	assert.Equal(t, "en-us", res.Info.Language)
	assert.Equal(t, "https://gear.example.com/logo.png", res.Info.Image)
	assert.Equal(t, 1, res.Filtered)
	require.Len(t, res.Items, 3)

	first := res.Items[0]
	assert.Equal(t, "The best laptops of 2026", first.Title)
	assert.Equal(t, "https://gear.example.com/laptops", first.Link)
	assert.Equal(t, "gear-1", first.GUID)
	assert.Equal(t, "Jane Doe", first.Author)
	assert.Equal(t, []string{"Tech"}, first.Categories)
	assert.Equal(t, "https://cdn.example.com/laptops.jpg", first.Image)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, first.PublishedAt.Equal(time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)))
	assert.Contains(t, first.Content, "Gadgets and gear reviewed in depth.")

	assert.Equal(t, "https://cdn.example.com/desk.png", res.Items[1].Image)
	assert.Equal(t, "https://cdn.example.com/headphones-thumb.jpg", res.Items[2].Image)
}

func TestAggregator_MaxItems(t *testing.T) {
	agg := NewAggregator(&fakeGetter{}, Options{MaxItems: 2, MinContentLength: 100})

	res, err := agg.Parse([]byte(rssFixture))
	require.NoError(t, err)
	// Only the first two items are considered; the second is too short.
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.Filtered)
}

func TestAggregator_Atom(t *testing.T) {
	agg := NewAggregator(&fakeGetter{}, testOptions())

	res, err := agg.Parse([]byte(atomFixture))
	require.NoError(t, err)
	assert.Equal(t, "atom", res.Type)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Kitchen upgrades", res.Items[0].Title)
	assert.Equal(t, "Sam Lee", res.Items[0].Author)
	require.NotNil(t, res.Items[0].PublishedAt)
}

func TestAggregator_ParseInvalid(t *testing.T) {
	agg := NewAggregator(&fakeGetter{}, testOptions())

	_, err := agg.Parse([]byte("definitely not a feed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestAggregator_FetchError(t *testing.T) {
	agg := NewAggregator(&fakeGetter{}, testOptions())

	_, err := agg.Fetch(context.Background(), "https://missing.example.com/feed")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAggregator_Validate(t *testing.T) {
	g := &fakeGetter{pages: map[string]*fetcher.Response{
		"https://gear.example.com/feed": page("application/rss+xml", rssFixture),
	}}
	info, n, err := NewAggregator(g, testOptions()).Validate(context.Background(), "https://gear.example.com/feed")
	require.NoError(t, err)
	assert.Equal(t, "Gear Weekly", info.Title)
	assert.Equal(t, 3, n)
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator(&fakeGetter{}, Options{MinContentLength: -1})
	assert.Equal(t, 50, agg.opts.MaxItems)
	assert.Equal(t, 10000, agg.opts.MaxContentLength)
	assert.Zero(t, agg.opts.MinContentLength)
}

func TestAggregator_WithHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(atomFixture)) //nolint:errcheck
	}))
	defer srv.Close()

	hf := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RequestsPerSecond: 100, Burst: 10})
	res, err := NewAggregator(hf, testOptions()).Fetch(context.Background(), srv.URL+"/atom")
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
}
