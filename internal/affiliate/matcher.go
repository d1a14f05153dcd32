// Package affiliate detects product mentions in free text and scores them for link injection.
package affiliate

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/textnorm"
)

const (
	patternConfidence        = 0.8
	keywordConfidence        = 0.7
	catalogNameConfidence    = 0.9
	catalogKeywordConfidence = 0.75

	mentionBonusStep  = 0.1
	mentionBonusCap   = 0.15
	indicatorBonus    = 0.1
	catalogBonus      = 0.05
	indicatorRadius   = 100
	indicatorWindow   = 2 * indicatorRadius
	unknownCategory   = "unknown"
	defaultMinConf    = 0.6
	defaultMaxResults = 10
)

// CatalogSource lists the active product catalog.
type CatalogSource interface {
	ListActiveCatalogEntries(ctx context.Context) ([]model.CatalogEntry, error)
}

// StaticCatalog is an in-memory CatalogSource. Inactive entries are skipped.
type StaticCatalog []model.CatalogEntry

// ListActiveCatalogEntries implements CatalogSource.
func (s StaticCatalog) ListActiveCatalogEntries(_ context.Context) ([]model.CatalogEntry, error) {
	out := make([]model.CatalogEntry, 0, len(s))
	for _, e := range s {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out, nil
}

// Matcher runs pattern, keyword, and catalog detection over text.
// It holds only immutable rules and is safe for concurrent use.
type Matcher struct {
	rules         *Rules
	catalog       CatalogSource
	norm          textnorm.Normalizer
	minConfidence float64
	maxResults    int
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithCatalog sets the catalog consulted by DetectByCatalog.
func WithCatalog(c CatalogSource) MatcherOption {
	return func(m *Matcher) { m.catalog = c }
}

// WithNormalizer sets the locale used for case folding.
func WithNormalizer(n textnorm.Normalizer) MatcherOption {
	return func(m *Matcher) { m.norm = n }
}

// WithDefaults overrides the default minimum confidence and result cap.
func WithDefaults(minConfidence float64, maxResults int) MatcherOption {
	return func(m *Matcher) {
		if minConfidence > 0 {
			m.minConfidence = minConfidence
		}
		if maxResults > 0 {
			m.maxResults = maxResults
		}
	}
}

// NewMatcher creates a Matcher over validated rules.
func NewMatcher(rules *Rules, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		rules:         rules,
		minConfidence: defaultMinConf,
		maxResults:    defaultMaxResults,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Normalize strips markup, collapses whitespace, and trims.
func (m *Matcher) Normalize(text string) string {
	return textnorm.Clean(text)
}

// DetectByPattern emits one raw match per regex occurrence.
func (m *Matcher) DetectByPattern(text, categoryFilter string) []model.RawMatch {
	var out []model.RawMatch
	for _, c := range m.rules.selectCategories(categoryFilter) {
		for _, re := range c.patterns {
			for _, hit := range re.FindAllString(text, -1) {
				out = append(out, model.RawMatch{
					Name:           strings.TrimSpace(hit),
					Source:         model.SourcePattern,
					Category:       c.name,
					BaseConfidence: patternConfidence,
				})
			}
		}
	}
	return out
}

// DetectByKeyword emits one raw match per keyword contained in text.
func (m *Matcher) DetectByKeyword(text, categoryFilter string) []model.RawMatch {
	lower := m.norm.Lower(text)
	var out []model.RawMatch
	for _, c := range m.rules.selectCategories(categoryFilter) {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, model.RawMatch{
					Name:           kw,
					Source:         model.SourceKeyword,
					Category:       c.name,
					BaseConfidence: keywordConfidence,
				})
			}
		}
	}
	return out
}

// DetectByCatalog matches active catalog entries by name and, separately, by
// their first matching keyword.
func (m *Matcher) DetectByCatalog(ctx context.Context, text string) ([]model.RawMatch, error) {
	if m.catalog == nil {
		return nil, nil
	}
	entries, err := m.catalog.ListActiveCatalogEntries(ctx)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "affiliate: list catalog"))
	}

	lower := m.norm.Lower(text)
	var out []model.RawMatch
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		cat := e.Category
		if cat == "" {
			cat = unknownCategory
		}
		id := e.ID

		if name := m.norm.Lower(strings.TrimSpace(e.Name)); name != "" && strings.Contains(lower, name) {
			out = append(out, model.RawMatch{
				Name:           e.Name,
				Source:         model.SourceCatalogName,
				Category:       cat,
				BaseConfidence: catalogNameConfidence,
				CatalogID:      &id,
			})
		}
		for _, kw := range e.Keywords {
			kw = m.norm.Lower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				out = append(out, model.RawMatch{
					Name:           e.Name,
					Source:         model.SourceCatalogKeyword,
					Category:       cat,
					BaseConfidence: catalogKeywordConfidence,
					CatalogID:      &id,
				})
				break
			}
		}
	}
	return out, nil
}

type group struct {
	match model.ProductMatch
	base  float64
}

// MergeAndScore groups raw matches by case-insensitive trimmed name, keeping
// first-seen order, and computes the final confidence of each group.
func (m *Matcher) MergeAndScore(raw []model.RawMatch, text string) []model.ProductMatch {
	index := make(map[string]int, len(raw))
	var groups []*group
	for _, r := range raw {
		key := m.norm.Lower(strings.TrimSpace(r.Name))
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, &group{
				match: model.ProductMatch{
					Name:         strings.TrimSpace(r.Name),
					Source:       r.Source,
					Category:     r.Category,
					CatalogID:    r.CatalogID,
					MentionCount: 1,
				},
				base: r.BaseConfidence,
			})
			continue
		}
		g := groups[i]
		g.match.MentionCount++
		if r.BaseConfidence > g.base {
			g.base = r.BaseConfidence
		}
		if g.match.CatalogID == nil && r.CatalogID != nil {
			g.match.CatalogID = r.CatalogID
		}
	}

	lower := []rune(m.norm.Lower(text))
	out := make([]model.ProductMatch, 0, len(groups))
	for _, g := range groups {
		pm := g.match
		pm.Confidence = m.confidence(g.base, pm, lower)
		out = append(out, pm)
	}
	return out
}

func (m *Matcher) confidence(base float64, pm model.ProductMatch, lowerText []rune) float64 {
	score := base
	if pm.MentionCount > 1 {
		score += min(mentionBonusStep*float64(pm.MentionCount-1), mentionBonusCap)
	}
	if m.hasIndicators(m.norm.Lower(pm.Name), lowerText) {
		score += indicatorBonus
	}
	if pm.CatalogID != nil {
		score += catalogBonus
	}
	return max(0, min(score, 1.0))
}

// hasIndicators checks the window of 200 runes starting 100 runes before the
// first occurrence of name.
func (m *Matcher) hasIndicators(name string, lowerText []rune) bool {
	if name == "" {
		return false
	}
	text := string(lowerText)
	idx := strings.Index(text, name)
	if idx < 0 {
		return false
	}
	pos := utf8.RuneCountInString(text[:idx])
	start := max(0, pos-indicatorRadius)
	end := min(len(lowerText), start+indicatorWindow)
	window := string(lowerText[start:end])
	for _, ind := range m.rules.indicators {
		if strings.Contains(window, ind) {
			return true
		}
	}
	return false
}

// FindOption tunes a single FindProducts call.
type FindOption func(*findOptions)

type findOptions struct {
	category      string
	minConfidence float64
	maxResults    int
}

// WithCategory restricts pattern and keyword detection to one category.
func WithCategory(c string) FindOption {
	return func(o *findOptions) { o.category = c }
}

// WithMinConfidence drops matches scoring below v.
func WithMinConfidence(v float64) FindOption {
	return func(o *findOptions) { o.minConfidence = v }
}

// WithMaxResults caps the number of matches returned.
func WithMaxResults(n int) FindOption {
	return func(o *findOptions) { o.maxResults = n }
}

func (m *Matcher) resolve(opts []FindOption) findOptions {
	o := findOptions{minConfidence: m.minConfidence, maxResults: m.maxResults}
	for _, fn := range opts {
		fn(&o)
	}
	if o.maxResults <= 0 {
		o.maxResults = m.maxResults
	}
	return o
}

// FindProducts runs every detector over text and returns matches sorted by
// descending confidence. Ties keep detection order.
func (m *Matcher) FindProducts(ctx context.Context, text string, opts ...FindOption) ([]model.ProductMatch, error) {
	o := m.resolve(opts)

	clean := m.Normalize(text)
	if clean == "" {
		return []model.ProductMatch{}, nil
	}

	raw := m.DetectByPattern(clean, o.category)
	raw = append(raw, m.DetectByKeyword(clean, o.category)...)
	catalogHits, err := m.DetectByCatalog(ctx, clean)
	if err != nil {
		return nil, err
	}
	raw = append(raw, catalogHits...)

	merged := m.MergeAndScore(raw, clean)
	out := merged[:0]
	for _, pm := range merged {
		if pm.Confidence >= o.minConfidence {
			out = append(out, pm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > o.maxResults {
		out = out[:o.maxResults]
	}
	return out, nil
}

// FindProductsInContent scans the title, body, and excerpt of c.
func (m *Matcher) FindProductsInContent(ctx context.Context, c *model.Content, opts ...FindOption) ([]model.ProductMatch, error) {
	if c.Category != "" {
		opts = append([]FindOption{WithCategory(c.Category)}, opts...)
	}
	return m.FindProducts(ctx, c.MatchText(), opts...)
}
