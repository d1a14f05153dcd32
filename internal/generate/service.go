package generate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/textnorm"
)

// ErrDuplicate is returned when generated content duplicates stored content.
var ErrDuplicate = errors.New("generated content is a duplicate")

const excerptLength = 200

// ContentStore persists generated articles and their usage.
type ContentStore interface {
	UsageRecorder
	CreateContent(ctx context.Context, c *model.Content) error
}

// Deduper checks candidates and records fingerprints. *dedup.Detector satisfies it.
type Deduper interface {
	CheckDuplicate(ctx context.Context, title, body string) (*model.Verdict, error)
	RecordFingerprint(ctx context.Context, contentID int64, title, body string) error
}

// Service generates and stores whole articles.
type Service struct {
	writer   *Writer
	contents ContentStore
	dedup    Deduper
	now      func() time.Time
}

// NewService creates a Service.
func NewService(gen Generator, contents ContentStore, d Deduper) *Service {
	return &Service{
		writer:   NewWriter(gen, nil),
		contents: contents,
		dedup:    d,
		now:      time.Now,
	}
}

// ArticleRequest describes an article to generate.
type ArticleRequest struct {
	Topic           string
	Words           int
	Category        string
	Publish         bool
	AllowDuplicates bool
}

type usage struct {
	kind   string
	prompt string
	res    *Result
}

// GenerateArticle writes an article about req.Topic, picks its headline,
// refuses it when it duplicates stored content, and stores it with its meta
// description, tags, fingerprint, and usage records.
func (s *Service) GenerateArticle(ctx context.Context, req ArticleRequest) (*model.Content, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, model.Wrap(model.ErrInvalidInput, eris.New("generate: topic is empty"))
	}
	log := zap.L().With(zap.String("topic", topic), zap.String("provider", s.writer.Provider()))

	article, err := s.writer.Article(ctx, topic, req.Words)
	if err != nil {
		return nil, eris.Wrap(err, "generate: article")
	}
	usages := []usage{{KindArticle, ArticlePrompt(topic, req.Words), article}}

	title, res, err := s.writer.BestHeadline(ctx, topic)
	if err != nil {
		log.Warn("generate: headline failed, using topic", zap.Error(err))
		title = topic
	} else {
		usages = append(usages, usage{KindHeadline, topic, res})
	}

	verdict, err := s.dedup.CheckDuplicate(ctx, title, article.Text)
	if err != nil {
		return nil, eris.Wrap(err, "generate: duplicate check")
	}
	if verdict.IsDuplicate && !req.AllowDuplicates {
		return nil, model.Wrap(model.ErrInvalidInput, eris.Wrapf(ErrDuplicate,
			"generate: %s match (%.2f%% similar)", verdict.MatchType, verdict.Similarity))
	}

	excerpt := textnorm.Truncate(textnorm.Clean(article.Text), excerptLength)
	meta := map[string]any{
		"source":      "ai",
		"topic":       topic,
		"ai_provider": s.writer.Provider(),
	}
	if desc, res, err := s.writer.Meta(ctx, title, excerpt); err != nil {
		log.Warn("generate: meta description failed", zap.Error(err))
	} else {
		meta["meta_description"] = desc
		usages = append(usages, usage{KindMeta, title, res})
	}
	if tags, res, err := s.writer.Tags(ctx, title, article.Text); err != nil {
		log.Warn("generate: tags failed", zap.Error(err))
	} else {
		meta["tags"] = tags
		usages = append(usages, usage{KindTags, title, res})
	}

	c := &model.Content{
		Title:    title,
		Slug:     textnorm.Slug(title),
		Body:     article.Text,
		Excerpt:  excerpt,
		Category: req.Category,
		Language: "en",
		Status:   model.ContentStatusDraft,
		Metadata: meta,
	}
	if req.Publish {
		now := s.now().UTC()
		c.Status = model.ContentStatusPublished
		c.PublishedAt = &now
	}
	if err := s.contents.CreateContent(ctx, c); err != nil {
		return nil, eris.Wrap(err, "generate: create content")
	}

	if err := s.dedup.RecordFingerprint(ctx, c.ID, c.Title, c.Body); err != nil {
		log.Warn("generate: record fingerprint failed", zap.Int64("content_id", c.ID), zap.Error(err))
	}
	for _, u := range usages {
		recordUsage(ctx, s.contents, s.writer.Provider(), u.kind, u.prompt, &c.ID, u.res)
	}

	log.Info("generate: article stored",
		zap.Int64("content_id", c.ID),
		zap.String("title", c.Title),
		zap.Int("tokens", totalTokens(usages)),
	)
	return c, nil
}

func totalTokens(usages []usage) int {
	n := 0
	for _, u := range usages {
		n += u.res.TokensUsed
	}
	return n
}
