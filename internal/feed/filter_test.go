package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hubizz/hubizz/internal/model"
)

func TestPassesQualityFilters(t *testing.T) {
	opts := Options{MinContentLength: 10, MaxContentLength: 50}
	tests := []struct {
		name       string
		item       model.FeedItem
		opts       Options
		wantOK     bool
		wantReason string
	}{
		{name: "content in range", item: model.FeedItem{Title: "t", Content: "0123456789ab"}, opts: opts, wantOK: true},
		{name: "falls back to description", item: model.FeedItem{Title: "t", Description: "0123456789ab"}, opts: opts, wantOK: true},
		{name: "content preferred over description", item: model.FeedItem{Title: "t", Content: "short", Description: "0123456789ab"}, opts: opts, wantReason: ReasonTooShort},
		{name: "exactly minimum", item: model.FeedItem{Title: "t", Content: "0123456789"}, opts: opts, wantOK: true},
		{name: "too long", item: model.FeedItem{Title: "t", Content: strings.Repeat("x", 51)}, opts: opts, wantReason: ReasonTooLong},
		{name: "length in bytes", item: model.FeedItem{Title: "t", Content: "ééééé"}, opts: opts, wantOK: true},
		{name: "image required", item: model.FeedItem{Title: "t", Content: "0123456789"}, opts: Options{MinContentLength: 1, RequireImage: true}, wantReason: ReasonNoImage},
		{name: "image present", item: model.FeedItem{Title: "t", Content: "0123456789", Image: "https://x/y.jpg"}, opts: Options{MinContentLength: 1, RequireImage: true}, wantOK: true},
		{name: "missing title", item: model.FeedItem{Content: "0123456789"}, opts: opts, wantReason: ReasonNoTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := PassesQualityFilters(&tt.item, tt.opts)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a \n\t b   c  "))
	assert.Equal(t, "", CleanText(" \n "))
}
