package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ExtractImage picks the item image: an image enclosure, then the item or
// media thumbnail, then the first <img src> in the content.
func ExtractImage(it *gofeed.Item) string {
	for _, enc := range it.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			return enc.URL
		}
	}
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	if u := mediaThumbnail(it); u != "" {
		return u
	}
	if u := FirstImageSrc(it.Content); u != "" {
		return u
	}
	return FirstImageSrc(it.Description)
}

// mediaThumbnail reads <media:thumbnail url> or an image <media:content>.
func mediaThumbnail(it *gofeed.Item) string {
	media, ok := it.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media["thumbnail"] {
		if u := ext.Attrs["url"]; u != "" {
			return u
		}
	}
	for _, ext := range media["content"] {
		medium := ext.Attrs["medium"]
		if u := ext.Attrs["url"]; u != "" && (medium == "image" || strings.HasPrefix(ext.Attrs["type"], "image/")) {
			return u
		}
	}
	return ""
}

// FirstImageSrc returns the src of the first <img> in an HTML fragment.
func FirstImageSrc(html string) string {
	if !strings.Contains(strings.ToLower(html), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src = strings.TrimSpace(s.AttrOr("src", ""))
		return src == ""
	})
	return src
}
