// Package feed fetches and parses RSS and Atom feeds, applies the import
// quality filters, and discovers feeds advertised by web pages.
package feed

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/fetcher"
	"github.com/hubizz/hubizz/internal/model"
)

// Getter downloads a URL. *fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*fetcher.Response, error)
}

// Options are the import limits applied to every fetched feed.
type Options struct {
	MaxItems         int
	MinContentLength int
	MaxContentLength int
	RequireImage     bool
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxItems:         50,
		MinContentLength: 200,
		MaxContentLength: 10000,
	}
}

// Result is a parsed feed after filtering.
type Result struct {
	// Type is rss, atom, or json.
	Type     string
	Info     model.FeedInfo
	Items    []model.FeedItem
	Filtered int
}

// Aggregator fetches feeds through a rate-limited HTTP client and parses them
// with gofeed.
type Aggregator struct {
	http Getter
	opts Options
}

// NewAggregator creates an Aggregator. Zero limits fall back to DefaultOptions.
func NewAggregator(g Getter, opts Options) *Aggregator {
	def := DefaultOptions()
	if opts.MaxItems <= 0 {
		opts.MaxItems = def.MaxItems
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = def.MaxContentLength
	}
	if opts.MinContentLength < 0 {
		opts.MinContentLength = 0
	}
	return &Aggregator{http: g, opts: opts}
}

// Fetch downloads and parses the feed at url. Items failing the quality
// filters are dropped and counted in Result.Filtered.
func (a *Aggregator) Fetch(ctx context.Context, url string) (*Result, error) {
	log := zap.L().With(zap.String("feed_url", url))
	log.Info("feed: fetching")

	resp, err := a.http.Get(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: fetch %s", url)
	}
	res, err := a.Parse(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: parse %s", url)
	}

	log.Info("feed: fetched",
		zap.Int("items", len(res.Items)),
		zap.Int("filtered", res.Filtered),
	)
	return res, nil
}

// Parse parses a raw RSS or Atom document.
func (a *Aggregator) Parse(data []byte) (*Result, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, model.Wrap(model.ErrInvalidInput, eris.Wrap(err, "feed: parse document"))
	}

	res := &Result{Type: parsed.FeedType, Info: feedInfo(parsed)}
	items := parsed.Items
	if len(items) > a.opts.MaxItems {
		items = items[:a.opts.MaxItems]
	}
	for _, it := range items {
		item := parseItem(it)
		if ok, reason := PassesQualityFilters(&item, a.opts); !ok {
			zap.L().Debug("feed: item filtered", zap.String("title", item.Title), zap.String("reason", reason))
			res.Filtered++
			continue
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// Validate fetches url and reports the feed title and item count, without
// importing anything.
func (a *Aggregator) Validate(ctx context.Context, url string) (model.FeedInfo, int, error) {
	res, err := a.Fetch(ctx, url)
	if err != nil {
		return model.FeedInfo{}, 0, err
	}
	info := res.Info
	if info.Title == "" {
		info.Title = "Unknown"
	}
	return info, len(res.Items), nil
}

func feedInfo(f *gofeed.Feed) model.FeedInfo {
	info := model.FeedInfo{
		Title:       CleanText(f.Title),
		Description: CleanText(f.Description),
		Link:        f.Link,
		Language:    f.Language,
		Copyright:   f.Copyright,
	}
	if f.Image != nil {
		info.Image = f.Image.URL
	}
	return info
}

func parseItem(it *gofeed.Item) model.FeedItem {
	item := model.FeedItem{
		Title:       CleanText(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Description: CleanText(it.Description),
		Content:     CleanText(it.Content),
		Categories:  nonEmpty(it.Categories),
		Image:       ExtractImage(it),
		GUID:        it.GUID,
	}
	if it.Author != nil {
		item.Author = it.Author.Name
	} else if len(it.Authors) > 0 && it.Authors[0] != nil {
		item.Author = it.Authors[0].Name
	}

	var published *time.Time
	switch {
	case it.PublishedParsed != nil:
		published = it.PublishedParsed
	case it.UpdatedParsed != nil:
		published = it.UpdatedParsed
	}
	if published != nil {
		t := published.UTC()
		item.PublishedAt = &t
	}
	return item
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
