// Package textnorm normalizes free text for hashing, similarity, and product matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// StripTags removes markup and returns the text content with entities decoded.
// Script and style bodies are dropped. Inline tags vanish without a trace, so
// "<b>here</b>" and "here" strip to the same text; block-level boundaries
// become a single space.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawText(name) {
				skip++
			}
			separate(&b, name)
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawText(name) && skip > 0 {
				skip--
			}
			separate(&b, name)
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			separate(&b, name)
		}
	}
}

func separate(b *strings.Builder, name []byte) {
	if blockLevel[atom.Lookup(name)] {
		b.WriteByte(' ')
	}
}

var blockLevel = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Img: true, atom.Li: true, atom.Main: true,
	atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true, atom.Script: true,
	atom.Section: true, atom.Style: true, atom.Table: true, atom.Td: true, atom.Th: true,
	atom.Tr: true, atom.Ul: true,
}

func isRawText(name []byte) bool {
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

// CollapseSpace replaces every run of whitespace with a single space and trims the ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clean strips markup, collapses whitespace, and trims.
func Clean(s string) string {
	return CollapseSpace(StripTags(s))
}

// StripPunct drops every rune that is not a letter, digit, underscore, or space.
func StripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
}

// Slug turns a title into a lowercase URL path segment. Diacritics are
// dropped and runs of other characters become a single hyphen.
func Slug(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	hyphen := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if hyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			hyphen = false
			b.WriteRune(r)
		default:
			hyphen = true
		}
	}
	return b.String()
}

// Truncate shortens s to at most n runes, replacing the tail with "..."
// when it was cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// Normalizer folds case for a fixed locale. The zero value uses language.Und.
type Normalizer struct {
	Lang language.Tag
}

// New returns a Normalizer for lang.
func New(lang language.Tag) Normalizer {
	return Normalizer{Lang: lang}
}

// Lower returns s in NFC form, lowercased for the normalizer's locale.
// A cases.Caser is stateful, so one is built per call.
func (n Normalizer) Lower(s string) string {
	return cases.Lower(n.Lang).String(norm.NFC.String(s))
}

// Title normalizes a title for hashing: trim then lowercase.
func (n Normalizer) Title(s string) string {
	return n.Lower(strings.TrimSpace(s))
}

// Body normalizes a body for hashing: strip tags, collapse whitespace, trim, lowercase.
func (n Normalizer) Body(s string) string {
	return n.Lower(Clean(s))
}

// Similarity normalizes text for fuzzy comparison. It is Body with punctuation removed.
func (n Normalizer) Similarity(s string) string {
	return CollapseSpace(StripPunct(n.Body(s)))
}
