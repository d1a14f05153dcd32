package affiliate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/cache"
	"github.com/hubizz/hubizz/internal/model"
)

// ContentReader loads a content item. It returns nil, nil when the item does not exist.
type ContentReader interface {
	GetContent(ctx context.Context, id int64) (*model.Content, error)
}

// Service finds products for stored content and caches the result per content item.
type Service struct {
	matcher  *Matcher
	contents ContentReader
	cache    cache.Cache
}

// NewService creates a Service. A nil cache disables caching.
func NewService(m *Matcher, contents ContentReader, c cache.Cache) *Service {
	return &Service{matcher: m, contents: contents, cache: c}
}

// Matcher returns the underlying matcher.
func (s *Service) Matcher() *Matcher {
	return s.matcher
}

func cacheField(o findOptions) string {
	return fmt.Sprintf("products|%s|%.4f|%d", o.category, o.minConfidence, o.maxResults)
}

// ProductsForContent returns the ranked product matches of content id.
func (s *Service) ProductsForContent(ctx context.Context, id int64, opts ...FindOption) ([]model.ProductMatch, error) {
	c, err := s.contents.GetContent(ctx, id)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "affiliate: get content %d", id))
	}
	if c == nil {
		return nil, model.Wrap(model.ErrNotFound, eris.Errorf("affiliate: content %d", id))
	}

	if c.Category != "" {
		opts = append([]FindOption{WithCategory(c.Category)}, opts...)
	}
	field := cacheField(s.matcher.resolve(opts))
	ns := cache.ContentNamespace(id)

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, ns, field)
		if err != nil {
			zap.L().Warn("affiliate: cache get failed", zap.Int64("content_id", id), zap.Error(err))
		} else if ok {
			var cached []model.ProductMatch
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	matches, err := s.matcher.FindProducts(ctx, c.MatchText(), opts...)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		raw, err := json.Marshal(matches)
		if err == nil {
			err = s.cache.Set(ctx, ns, field, raw)
		}
		if err != nil {
			zap.L().Warn("affiliate: cache set failed", zap.Int64("content_id", id), zap.Error(err))
		}
	}
	return matches, nil
}

// Invalidate drops every cached result derived from content id.
func (s *Service) Invalidate(ctx context.Context, id int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, cache.ContentNamespace(id)); err != nil {
		return eris.Wrapf(err, "affiliate: invalidate content %d", id)
	}
	return nil
}

// BatchResult is the outcome for one content item in BatchFind.
type BatchResult struct {
	Products []model.ProductMatch `json:"products,omitempty"`
	Count    int                  `json:"count"`
	Error    string               `json:"error,omitempty"`
}

// BatchFind runs ProductsForContent for each id. Missing items are skipped and
// per-item failures are reported in the result rather than aborting the batch.
func (s *Service) BatchFind(ctx context.Context, ids []int64, opts ...FindOption) map[int64]BatchResult {
	out := make(map[int64]BatchResult, len(ids))
	for _, id := range ids {
		matches, err := s.ProductsForContent(ctx, id, opts...)
		switch {
		case errors.Is(err, model.ErrNotFound):
			zap.L().Warn("affiliate: content not found", zap.Int64("content_id", id))
		case err != nil:
			out[id] = BatchResult{Error: err.Error()}
		default:
			out[id] = BatchResult{Products: matches, Count: len(matches)}
		}
	}
	return out
}

// Stats aggregates matches by source and category.
func Stats(matches []model.ProductMatch) model.DetectionStats {
	s := model.DetectionStats{
		BySource:   make(map[model.MatchSource]int),
		ByCategory: make(map[string]int),
	}
	var sum float64
	for _, m := range matches {
		s.Total++
		s.BySource[m.Source]++
		s.ByCategory[m.Category]++
		sum += m.Confidence
	}
	if s.Total > 0 {
		s.AverageConfidence = sum / float64(s.Total)
	}
	return s
}
