package feed

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
)

var feedTypes = map[string]string{
	"application/rss+xml":   "rss",
	"application/atom+xml":  "atom",
	"application/feed+json": "json",
}

// Discover lists the feeds a page advertises through
// <link rel="alternate" type="application/rss+xml|atom+xml">. A URL that is
// itself a feed is returned as the single result.
func (a *Aggregator) Discover(ctx context.Context, pageURL string) ([]model.DiscoveredFeed, error) {
	resp, err := a.http.Get(ctx, pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: discover %s", pageURL)
	}

	ct := strings.ToLower(resp.ContentType)
	if strings.Contains(ct, "xml") && !strings.Contains(ct, "html") {
		if res, err := a.Parse(resp.Body); err == nil {
			return []model.DiscoveredFeed{{URL: resp.URL, Title: res.Info.Title, Type: res.Type}}, nil
		}
	}

	feeds, err := DiscoverInHTML(resp.URL, resp.Body)
	if err != nil {
		return nil, err
	}
	zap.L().Info("feed: discovered", zap.String("url", pageURL), zap.Int("feeds", len(feeds)))
	return feeds, nil
}

// DiscoverInHTML extracts advertised feeds from an HTML page. Relative hrefs
// are resolved against pageURL and duplicates are dropped.
func DiscoverInHTML(pageURL string, html []byte) ([]model.DiscoveredFeed, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, model.Wrap(model.ErrInvalidInput, eris.Wrapf(err, "feed: parse page url %s", pageURL))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse html")
	}

	seen := make(map[string]bool)
	var out []model.DiscoveredFeed
	doc.Find(`link[rel~="alternate"][href]`).Each(func(_ int, s *goquery.Selection) {
		kind, ok := feedTypes[strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))]
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(s.AttrOr("href", "")))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		out = append(out, model.DiscoveredFeed{
			URL:   abs,
			Title: CleanText(s.AttrOr("title", "")),
			Type:  kind,
		})
	})
	return out, nil
}
