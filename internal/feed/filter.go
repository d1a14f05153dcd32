package feed

import (
	"strings"

	"github.com/hubizz/hubizz/internal/model"
)

// Reasons an item is rejected by PassesQualityFilters.
const (
	ReasonTooShort = "too short"
	ReasonTooLong  = "too long"
	ReasonNoImage  = "no image"
	ReasonNoTitle  = "no title"
)

// PassesQualityFilters checks an item against the import limits. The length
// is measured in bytes on the content, or the description when the item has
// no content.
func PassesQualityFilters(item *model.FeedItem, opts Options) (bool, string) {
	n := len(item.Text())
	if n < opts.MinContentLength {
		return false, ReasonTooShort
	}
	if opts.MaxContentLength > 0 && n > opts.MaxContentLength {
		return false, ReasonTooLong
	}
	if opts.RequireImage && item.Image == "" {
		return false, ReasonNoImage
	}
	if item.Title == "" {
		return false, ReasonNoTitle
	}
	return true, ""
}

// CleanText collapses runs of whitespace to one space and trims the ends.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
