package affiliate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/cache"
	"github.com/hubizz/hubizz/internal/model"
)

type mapContents map[int64]*model.Content

func (m mapContents) GetContent(_ context.Context, id int64) (*model.Content, error) {
	return m[id], nil
}

type brokenContents struct{}

func (brokenContents) GetContent(context.Context, int64) (*model.Content, error) {
	return nil, eris.New("too many connections")
}

type countingCatalog struct {
	calls atomic.Int32
}

func (c *countingCatalog) ListActiveCatalogEntries(context.Context) ([]model.CatalogEntry, error) {
	c.calls.Add(1)
	return nil, nil
}

func newTestService(t *testing.T) (*Service, *countingCatalog) {
	t.Helper()
	catalog := &countingCatalog{}
	m := newTestMatcher(t, WithCatalog(catalog))
	contents := mapContents{
		1: {ID: 1, Title: "Laptop review", Body: "The best laptop of the year."},
		2: {ID: 2, Title: "Kitchen", Body: "A blender and a toaster.", Category: "life"},
	}
	return NewService(m, contents, cache.NewMemory(100, time.Hour)), catalog
}

func TestProductsForContent_Cached(t *testing.T) {
	svc, catalog := newTestService(t)
	ctx := context.Background()

	first, err := svc.ProductsForContent(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.Equal(t, "laptop", first[0].Name)

	second, err := svc.ProductsForContent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), catalog.calls.Load())

	// Different options use a different field in the same namespace.
	_, err = svc.ProductsForContent(ctx, 1, WithMaxResults(1))
	require.NoError(t, err)
	assert.Equal(t, int32(2), catalog.calls.Load())
}

func TestProductsForContent_UsesContentCategory(t *testing.T) {
	svc, _ := newTestService(t)
	got, err := svc.ProductsForContent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, pm := range got {
		assert.Equal(t, "life", pm.Category)
	}
}

func TestInvalidate_ScopedToContent(t *testing.T) {
	svc, catalog := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProductsForContent(ctx, 1)
	require.NoError(t, err)
	_, err = svc.ProductsForContent(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int32(2), catalog.calls.Load())

	require.NoError(t, svc.Invalidate(ctx, 1))

	_, err = svc.ProductsForContent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), catalog.calls.Load())

	_, err = svc.ProductsForContent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(3), catalog.calls.Load())
}

func TestProductsForContent_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ProductsForContent(context.Background(), 99)
	assert.True(t, errors.Is(err, model.ErrNotFound))

	broken := NewService(newTestMatcher(t), brokenContents{}, nil)
	_, err = broken.ProductsForContent(context.Background(), 1)
	assert.True(t, errors.Is(err, model.ErrStoreUnavailable))
}

func TestProductsForContent_NoCache(t *testing.T) {
	svc := NewService(newTestMatcher(t), mapContents{1: {ID: 1, Body: "a drone"}}, nil)
	got, err := svc.ProductsForContent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NoError(t, svc.Invalidate(context.Background(), 1))
}

func TestBatchFind(t *testing.T) {
	svc, _ := newTestService(t)
	got := svc.BatchFind(context.Background(), []int64{1, 2, 404})

	assert.Len(t, got, 2)
	assert.NotContains(t, got, int64(404))
	assert.Equal(t, len(got[1].Products), got[1].Count)
	assert.Empty(t, got[2].Error)
}

func TestStats(t *testing.T) {
	s := Stats([]model.ProductMatch{
		{Source: model.SourcePattern, Category: "tech", Confidence: 0.9},
		{Source: model.SourceKeyword, Category: "tech", Confidence: 0.7},
	})
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.BySource[model.SourcePattern])
	assert.Equal(t, 2, s.ByCategory["tech"])
	assert.InDelta(t, 0.8, s.AverageConfidence, 0.0001)

	empty := Stats(nil)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.AverageConfidence)
}
