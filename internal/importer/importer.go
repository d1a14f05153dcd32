// Package importer turns feed items into content: it skips items seen before
// or detected as duplicates, files them under a category, optionally rewrites
// them with the AI provider, and mirrors their images.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/dedup"
	"github.com/hubizz/hubizz/internal/feed"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/textnorm"
)

// Item statuses recorded in the import log.
const (
	StatusImported = "imported"
	StatusSkipped  = "skipped"
	StatusError    = "error"
)

const excerptLength = 200

// Store is the persistence the importer needs.
type Store interface {
	dedup.ImportLedger
	CreateContent(ctx context.Context, c *model.Content) error
	SetContentImage(ctx context.Context, id int64, imageURL string) error
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateFeedCheck(ctx context.Context, f *model.Feed) error
	CreateImport(ctx context.Context, rec *model.ImportRecord) error
	UpdateImport(ctx context.Context, rec *model.ImportRecord) error
}

// FeedFetcher downloads and filters a feed. *feed.Aggregator satisfies it.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*feed.Result, error)
}

// Deduper checks candidates and records fingerprints. *dedup.Detector satisfies it.
type Deduper interface {
	CheckDuplicate(ctx context.Context, title, body string) (*model.Verdict, error)
	RecordFingerprint(ctx context.Context, contentID int64, title, body string) error
}

// Rewriter produces an original article from a feed item.
type Rewriter interface {
	RewriteFeedItem(ctx context.Context, item model.FeedItem) (title, body string, err error)
}

// ImageAttacher mirrors a remote image for a content item. *media.Mirror satisfies it.
type ImageAttacher interface {
	Attach(ctx context.Context, contentID int64, imageURL string) (string, error)
}

// Options toggle the optional import steps.
type Options struct {
	RewriteContent bool
	AutoPublish    bool
	DownloadImages bool
}

// Importer imports feeds.
type Importer struct {
	store    Store
	feeds    FeedFetcher
	dedup    Deduper
	rewriter Rewriter
	images   ImageAttacher
	opts     Options
	now      func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithRewriter sets the AI rewriter used when Options.RewriteContent is on.
func WithRewriter(r Rewriter) Option {
	return func(i *Importer) { i.rewriter = r }
}

// WithImages sets the image attacher used when Options.DownloadImages is on.
func WithImages(a ImageAttacher) Option {
	return func(i *Importer) { i.images = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) { i.now = now }
}

// New creates an Importer.
func New(st Store, feeds FeedFetcher, d Deduper, opts Options, options ...Option) *Importer {
	i := &Importer{store: st, feeds: feeds, dedup: d, opts: opts, now: time.Now}
	for _, o := range options {
		o(i)
	}
	return i
}

// ImportFeed fetches f and imports every item that passes the checks. Item
// failures are logged on the returned record and do not abort the run. A fetch
// failure marks the record and the feed failed and is returned.
func (i *Importer) ImportFeed(ctx context.Context, f *model.Feed) (*model.ImportRecord, error) {
	log := zap.L().With(zap.Int64("feed_id", f.ID), zap.String("feed_url", f.URL))
	started := i.now()
	rec := &model.ImportRecord{
		ID:        uuid.NewString(),
		FeedID:    f.ID,
		Status:    model.ImportStatusRunning,
		StartedAt: &started,
		CreatedAt: started,
	}
	if err := i.store.CreateImport(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "importer: create import for feed %d", f.ID)
	}
	log = log.With(zap.String("import_id", rec.ID))
	log.Info("importer: starting import")

	res, err := i.feeds.Fetch(ctx, f.URL)
	if err != nil {
		rec.Status = model.ImportStatusFailed
		rec.Error = err.Error()
		i.finish(ctx, rec, f, false, log)
		return rec, eris.Wrapf(err, "importer: feed %d", f.ID)
	}
	rec.ItemsFound = len(res.Items) + res.Filtered
	rec.ItemsSkipped = res.Filtered

	categories, err := i.store.ListCategories(ctx)
	if err != nil {
		log.Warn("importer: list categories failed", zap.Error(err))
	}

	for _, item := range res.Items {
		if ctx.Err() != nil {
			break
		}
		entry := i.importItem(ctx, f, item, categories)
		rec.Log = append(rec.Log, entry)
		if entry.Status == StatusImported {
			rec.ItemsImported++
		} else {
			rec.ItemsSkipped++
		}
	}

	if err := ctx.Err(); err != nil {
		rec.Status = model.ImportStatusFailed
		rec.Error = err.Error()
		i.finish(ctx, rec, f, false, log)
		return rec, eris.Wrapf(err, "importer: feed %d", f.ID)
	}

	rec.Status = model.ImportStatusCompleted
	i.finish(ctx, rec, f, true, log)
	return rec, nil
}

func (i *Importer) finish(ctx context.Context, rec *model.ImportRecord, f *model.Feed, success bool, log *zap.Logger) {
	now := i.now()
	rec.CompletedAt = &now
	// Bookkeeping must land even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := i.store.UpdateImport(ctx, rec); err != nil {
		log.Error("importer: update import failed", zap.Error(err))
	}
	f.MarkChecked(success, now)
	if err := i.store.UpdateFeedCheck(ctx, f); err != nil {
		log.Error("importer: update feed check failed", zap.Error(err))
	}
	log.Info("importer: import finished",
		zap.String("status", string(rec.Status)),
		zap.Int("found", rec.ItemsFound),
		zap.Int("imported", rec.ItemsImported),
		zap.Int("skipped", rec.ItemsSkipped),
	)
}

func (i *Importer) importItem(ctx context.Context, f *model.Feed, item model.FeedItem, categories []model.Category) model.ImportLogEntry {
	entry := model.ImportLogEntry{Title: item.Title}
	skip := func(reason string) model.ImportLogEntry {
		entry.Status = StatusSkipped
		entry.Reason = reason
		return entry
	}
	fail := func(err error) model.ImportLogEntry {
		zap.L().Warn("importer: item failed",
			zap.Int64("feed_id", f.ID), zap.String("link", item.Link), zap.Error(err))
		entry.Status = StatusError
		entry.Error = err.Error()
		return entry
	}

	imported, err := dedup.IsURLImported(ctx, i.store, item.Link)
	if err != nil {
		return fail(err)
	}
	if imported {
		return skip("URL already imported")
	}
	imported, err = dedup.IsGUIDImported(ctx, i.store, item.GUID)
	if err != nil {
		return fail(err)
	}
	if imported {
		return skip("GUID already imported")
	}

	v, err := i.dedup.CheckDuplicate(ctx, item.Title, item.Text())
	if err != nil {
		return fail(err)
	}
	if v.IsDuplicate {
		return skip(DuplicateReason(v))
	}

	c, err := i.buildContent(ctx, f, item, categories)
	if err != nil {
		return fail(err)
	}
	if err := i.store.CreateContent(ctx, c); err != nil {
		return fail(eris.Wrap(err, "importer: create content"))
	}
	entry.Status = StatusImported
	entry.ContentID = &c.ID

	if err := i.dedup.RecordFingerprint(ctx, c.ID, c.Title, c.Body); err != nil {
		zap.L().Warn("importer: record fingerprint failed", zap.Int64("content_id", c.ID), zap.Error(err))
	}
	if i.opts.DownloadImages && i.images != nil && item.Image != "" {
		i.attachImage(ctx, c.ID, item.Image)
	}
	return entry
}

func (i *Importer) attachImage(ctx context.Context, contentID int64, imageURL string) {
	loc, err := i.images.Attach(ctx, contentID, imageURL)
	if err != nil {
		zap.L().Warn("importer: image download failed",
			zap.Int64("content_id", contentID), zap.String("image", imageURL), zap.Error(err))
		return
	}
	if err := i.store.SetContentImage(ctx, contentID, loc); err != nil {
		zap.L().Warn("importer: set content image failed", zap.Int64("content_id", contentID), zap.Error(err))
	}
}

func (i *Importer) buildContent(ctx context.Context, f *model.Feed, item model.FeedItem, categories []model.Category) (*model.Content, error) {
	title, body := item.Title, item.Text()
	if i.opts.RewriteContent && i.rewriter != nil {
		rt, rb, err := i.rewriter.RewriteFeedItem(ctx, item)
		if err != nil {
			return nil, eris.Wrap(err, "importer: rewrite")
		}
		if rt = strings.TrimSpace(rt); rt != "" {
			title = rt
		}
		body = rb
	}

	feedID := f.ID
	meta := map[string]any{
		"rss_feed_id": f.ID,
		"guid":        item.GUID,
		"author":      item.Author,
		"source":      "rss",
	}
	if item.PublishedAt != nil {
		meta["published_at"] = item.PublishedAt.UTC().Format(time.RFC3339)
	}
	if i.opts.RewriteContent && i.rewriter != nil {
		meta["ai_rewritten"] = true
	}

	c := &model.Content{
		Title:      title,
		Slug:       textnorm.Slug(title),
		Body:       body,
		Excerpt:    textnorm.Truncate(textnorm.Clean(item.Description), excerptLength),
		Category:   DetermineCategory(f, item, categories),
		Language:   f.Language,
		Status:     model.ContentStatusDraft,
		SourceURL:  item.Link,
		SourceGUID: item.GUID,
		FeedID:     &feedID,
		ImageURL:   item.Image,
		Metadata:   meta,
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if i.opts.AutoPublish {
		now := i.now()
		c.Status = model.ContentStatusPublished
		c.PublishedAt = &now
	}
	return c, nil
}

// DetermineCategory returns the feed's category, else the slug of the first
// known category matching one of the item's categories by name or slug.
func DetermineCategory(f *model.Feed, item model.FeedItem, categories []model.Category) string {
	if f.Category != "" {
		return f.Category
	}
	for _, name := range item.Categories {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		slug := textnorm.Slug(name)
		for _, c := range categories {
			if strings.EqualFold(c.Name, name) || c.Slug == slug {
				return c.Slug
			}
		}
	}
	return ""
}

// DuplicateReason is the import log reason for a duplicate verdict.
func DuplicateReason(v *model.Verdict) string {
	return fmt.Sprintf("Duplicate detected (%s, %s%% similar)",
		v.MatchType, strconv.FormatFloat(v.Similarity, 'f', -1, 64))
}
