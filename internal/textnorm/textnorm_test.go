package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"paragraph", "<p>Full story here.</p>", "Full story here."},
		{"nested", "<div><b>Bold</b> text</div>", "Bold text"},
		{"entities", "Fish &amp; Chips", "Fish & Chips"},
		{"script dropped", "a<script>var x = 1;</script>b", "a b"},
		{"self closing", "line<br/>break", "line break"},
		{"inline leaves no gap", "Read the <a href=\"x\">full story</a>, now.", "Read the full story, now."},
		{"inline mid-word", "super<i>cali</i>fragile", "supercalifragile"},
		{"list items", "<ul><li>one</li><li>two</li></ul>", "one two"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseSpace(StripTags(tt.in)))
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Buy the new iPhone 15 now", Clean("  <p>Buy the   new\n\tiPhone 15</p> now "))
	assert.Equal(t, "", Clean("   "))
}

func TestStripPunct(t *testing.T) {
	assert.Equal(t, "Breaking News Today", StripPunct("Breaking: News Today!"))
	assert.Equal(t, "snake_case 42", StripPunct("snake_case, 42."))
	assert.Equal(t, "café", StripPunct("café!"))
}

func TestNormalizerTitle(t *testing.T) {
	var n Normalizer
	assert.Equal(t, "breaking news today", n.Title("  Breaking News Today "))
}

func TestNormalizerBody(t *testing.T) {
	var n Normalizer
	assert.Equal(t, "full story here.", n.Body("<p>Full   story\nHERE.</p>"))
	assert.Equal(t, n.Body("Full story here."), n.Body("<p>Full story here.</p>"))
	assert.Equal(t, n.Body("Full story here."), n.Body("Full story <b>here</b>."))
}

func TestNormalizerSimilarity(t *testing.T) {
	var n Normalizer
	assert.Equal(t, "breaking news today", n.Similarity("Breaking: News Today!"))
	assert.Equal(t, "", n.Similarity("!!!"))
}

func TestNormalizerLocale(t *testing.T) {
	tr := New(language.Turkish)
	assert.Equal(t, "ıstanbul", tr.Lower("ISTANBUL"))

	var und Normalizer
	assert.Equal(t, "istanbul", und.Lower("ISTANBUL"))
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Best Laptops of 2026", "best-laptops-of-2026"},
		{"  Café Déjà Vu!  ", "cafe-deja-vu"},
		{"Apple's M4 -- review", "apple-s-m4-review"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "hello...", Truncate("hello world", 8))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "çç...", Truncate("ççççççç", 5))
}
