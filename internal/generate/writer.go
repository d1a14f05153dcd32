package generate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/textnorm"
)

// Generation kinds recorded with usage.
const (
	KindArticle  = "article"
	KindRewrite  = "rewrite"
	KindMeta     = "meta"
	KindTags     = "tags"
	KindHeadline = "headline"
)

const (
	defaultWordCount = 800
	metaMaxLength    = 160
	maxTags          = 10
	defaultHeadlines = 5
)

// UsageRecorder persists generation usage. store.Store satisfies it.
type UsageRecorder interface {
	RecordGeneration(ctx context.Context, g *model.Generation) error
}

// Writer turns editorial requests into prompts and parses the replies.
type Writer struct {
	gen   Generator
	usage UsageRecorder
}

// NewWriter creates a Writer. A nil usage recorder skips usage tracking for
// calls made outside Service.
func NewWriter(gen Generator, usage UsageRecorder) *Writer {
	return &Writer{gen: gen, usage: usage}
}

// Provider returns the name of the underlying generator.
func (w *Writer) Provider() string { return w.gen.Name() }

// ArticlePrompt is the prompt for a new article about topic.
func ArticlePrompt(topic string, words int) string {
	if words <= 0 {
		words = defaultWordCount
	}
	return fmt.Sprintf("Generate a comprehensive, engaging article about %s. "+
		"Include relevant facts, current information, and make it viral-worthy. "+
		"Write approximately %d words.", topic, words)
}

// Article writes an article about topic of roughly words words.
func (w *Writer) Article(ctx context.Context, topic string, words int) (*Result, error) {
	return w.gen.Generate(ctx, ArticlePrompt(topic, words), Options{})
}

// Rewrite rephrases text so that it reads as original content.
func (w *Writer) Rewrite(ctx context.Context, text string) (*Result, error) {
	prompt := "Rewrite this content to be unique while maintaining the main message: " + text
	return w.gen.Generate(ctx, prompt, Options{})
}

// FeedItemPrompt is the prompt that rewrites a feed item into a new article.
func FeedItemPrompt(item model.FeedItem) string {
	var b strings.Builder
	b.WriteString("Rewrite this article with a fresh perspective while keeping the main facts:\n\n")
	fmt.Fprintf(&b, "Title: %s\n\n", item.Title)
	fmt.Fprintf(&b, "Content: %s\n\n", item.Text())
	b.WriteString("Create an engaging, unique article that covers the same topic but with different wording and structure.")
	return b.String()
}

// FromFeedItem writes a fresh article from a feed item.
func (w *Writer) FromFeedItem(ctx context.Context, item model.FeedItem) (*Result, error) {
	return w.gen.Generate(ctx, FeedItemPrompt(item), Options{})
}

// Meta writes a meta description of at most 160 characters.
func (w *Writer) Meta(ctx context.Context, title, excerpt string) (string, *Result, error) {
	prompt := "Generate a compelling meta description (150-160 chars) for: " + title
	if excerpt != "" {
		prompt += " Context: " + textnorm.Truncate(excerpt, 200)
	}
	res, err := w.gen.Generate(ctx, prompt, Options{MaxTokens: 60})
	if err != nil {
		return "", nil, err
	}
	return TrimMeta(res.Text), res, nil
}

// TrimMeta trims s and cuts it to 157 characters plus "..." when it is longer than 160.
func TrimMeta(s string) string {
	return textnorm.Truncate(strings.TrimSpace(s), metaMaxLength)
}

// Tags suggests up to ten tags for an article.
func (w *Writer) Tags(ctx context.Context, title, content string) ([]string, *Result, error) {
	prompt := "Generate 8-10 relevant tags for this article: " + title
	if content != "" {
		prompt += " Content excerpt: " + textnorm.Truncate(textnorm.Clean(content), 300)
	}
	res, err := w.gen.Generate(ctx, prompt, Options{MaxTokens: 100})
	if err != nil {
		return nil, nil, err
	}
	return ParseTags(res.Text), res, nil
}

// ParseTags splits a comma-separated reply into at most ten non-empty tags.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

// Headlines suggests n alternative headlines for title.
func (w *Writer) Headlines(ctx context.Context, title string, n int) ([]string, *Result, error) {
	if n <= 0 {
		n = defaultHeadlines
	}
	prompt := fmt.Sprintf("Create %d clickable, SEO-friendly headlines for: %s. Make them engaging and shareable.", n, title)
	res, err := w.gen.Generate(ctx, prompt, Options{})
	if err != nil {
		return nil, nil, err
	}
	return ParseHeadlines(res.Text), res, nil
}

var listMarker = regexp.MustCompile(`^(\d+[.)]|[-*•])\s*`)

// ParseHeadlines splits a reply into one headline per line, dropping list
// numbering, bullets, and wrapping quotes.
func ParseHeadlines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		line = strings.Trim(line, `"`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// BestHeadline asks for headline variations and returns the highest scoring
// one, or title when the provider suggests nothing.
func (w *Writer) BestHeadline(ctx context.Context, title string) (string, *Result, error) {
	headlines, res, err := w.Headlines(ctx, title, defaultHeadlines)
	if err != nil {
		return "", nil, err
	}
	ranked := RankHeadlines(headlines)
	if len(ranked) == 0 {
		return title, res, nil
	}
	return ranked[0].Headline, res, nil
}

// RewriteFeedItem rewrites a feed item and picks a new headline for it. A
// failed headline request keeps the original title.
func (w *Writer) RewriteFeedItem(ctx context.Context, item model.FeedItem) (string, string, error) {
	body, err := w.FromFeedItem(ctx, item)
	if err != nil {
		return "", "", eris.Wrap(err, "generate: rewrite feed item")
	}
	w.record(ctx, KindRewrite, item.Title, body)

	title, res, err := w.BestHeadline(ctx, item.Title)
	if err != nil {
		zap.L().Warn("generate: headline failed, keeping original title",
			zap.String("title", item.Title), zap.Error(err))
		return item.Title, body.Text, nil
	}
	w.record(ctx, KindHeadline, item.Title, res)
	return title, body.Text, nil
}

func (w *Writer) record(ctx context.Context, kind, prompt string, res *Result) {
	if w.usage == nil || res == nil {
		return
	}
	recordUsage(ctx, w.usage, w.gen.Name(), kind, prompt, nil, res)
}

func recordUsage(ctx context.Context, usage UsageRecorder, provider, kind, prompt string, contentID *int64, res *Result) {
	g := &model.Generation{
		ID:         uuid.NewString(),
		ContentID:  contentID,
		Kind:       kind,
		Provider:   provider,
		Model:      res.Model,
		Prompt:     prompt,
		TokensUsed: res.TokensUsed,
		Cost:       res.Cost,
	}
	if err := usage.RecordGeneration(ctx, g); err != nil {
		zap.L().Warn("generate: record usage failed", zap.String("kind", kind), zap.Error(err))
	}
}
