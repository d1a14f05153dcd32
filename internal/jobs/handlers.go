package jobs

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/affiliate"
	"github.com/hubizz/hubizz/internal/generate"
	"github.com/hubizz/hubizz/internal/model"
)

// FeedGetter loads one feed. It returns nil, nil when the feed does not exist.
type FeedGetter interface {
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
}

// FeedImporter imports one feed. *importer.Importer satisfies it.
type FeedImporter interface {
	ImportFeed(ctx context.Context, f *model.Feed) (*model.ImportRecord, error)
}

// Submitter queues follow-up work. *Pool and *RedisQueue satisfy it.
type Submitter interface {
	Submit(ctx context.Context, job model.Job) error
}

// ImportFeed returns the import_feed handler. Inactive feeds are skipped.
// When follow is set, every imported item gets a process_products job.
func ImportFeed(feeds FeedGetter, imp FeedImporter, follow Submitter) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		p, err := decode[ImportFeedPayload](model.JobImportFeed, raw)
		if err != nil {
			return err
		}
		f, err := feeds.GetFeed(ctx, p.FeedID)
		if err != nil {
			return model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "jobs: get feed %d", p.FeedID))
		}
		if f == nil {
			return model.Wrap(model.ErrNotFound, eris.Errorf("jobs: feed %d", p.FeedID))
		}
		if !f.IsActive {
			zap.L().Info("jobs: skipping inactive feed", zap.Int64("feed_id", f.ID))
			return nil
		}

		rec, err := imp.ImportFeed(ctx, f)
		if err != nil {
			return err
		}
		if follow == nil {
			return nil
		}
		for _, e := range rec.Log {
			if e.ContentID == nil {
				continue
			}
			if err := follow.Submit(ctx, ProcessProductsJob(*e.ContentID)); err != nil {
				zap.L().Warn("jobs: queue product processing failed",
					zap.Int64("content_id", *e.ContentID), zap.Error(err))
			}
		}
		return nil
	}
}

// ProductFinder finds and caches products for stored content. *affiliate.Service satisfies it.
type ProductFinder interface {
	ProductsForContent(ctx context.Context, id int64, opts ...affiliate.FindOption) ([]model.ProductMatch, error)
	Invalidate(ctx context.Context, id int64) error
}

// MatchSaver persists the product matches of a content item.
type MatchSaver interface {
	SaveProductMatches(ctx context.Context, contentID int64, matches []model.ProductMatch) error
}

// ProcessProducts returns the process_products handler. It stores the top
// matches above minConfidence and drops the cached results of the item.
func ProcessProducts(finder ProductFinder, saver MatchSaver, minConfidence float64, maxProducts int) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		p, err := decode[ProcessProductsPayload](model.JobProcessProducts, raw)
		if err != nil {
			return err
		}
		matches, err := finder.ProductsForContent(ctx, p.ContentID,
			affiliate.WithMinConfidence(minConfidence),
			affiliate.WithMaxResults(maxProducts),
		)
		if err != nil {
			return err
		}
		if err := saver.SaveProductMatches(ctx, p.ContentID, matches); err != nil {
			return model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "jobs: save matches for content %d", p.ContentID))
		}
		if err := finder.Invalidate(ctx, p.ContentID); err != nil {
			zap.L().Warn("jobs: cache invalidation failed", zap.Int64("content_id", p.ContentID), zap.Error(err))
		}
		zap.L().Info("jobs: products processed",
			zap.Int64("content_id", p.ContentID),
			zap.Int("products", len(matches)),
		)
		return nil
	}
}

// ArticleGenerator generates and stores an article. *generate.Service satisfies it.
type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, req generate.ArticleRequest) (*model.Content, error)
}

// GenerateArticle returns the generate_article handler. The stored article
// gets a process_products job when follow is set.
func GenerateArticle(gen ArticleGenerator, follow Submitter) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		p, err := decode[GenerateArticlePayload](model.JobGenerateArticle, raw)
		if err != nil {
			return err
		}
		c, err := gen.GenerateArticle(ctx, generate.ArticleRequest{
			Topic:           p.Topic,
			Words:           p.Words,
			Category:        p.Category,
			Publish:         p.Publish,
			AllowDuplicates: p.AllowDuplicates,
		})
		if err != nil {
			return err
		}
		if follow != nil {
			if err := follow.Submit(ctx, ProcessProductsJob(c.ID)); err != nil {
				zap.L().Warn("jobs: queue product processing failed", zap.Int64("content_id", c.ID), zap.Error(err))
			}
		}
		return nil
	}
}
