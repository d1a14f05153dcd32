// Package dedup decides whether candidate content duplicates something already stored,
// using exact digests first and a bounded fuzzy scan of recent content second.
package dedup

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/textnorm"
)

// FingerprintStore persists and looks up content fingerprints.
// Lookups return nil, nil when nothing matches.
type FingerprintStore interface {
	FindFingerprintByTitleHash(ctx context.Context, hash string) (*model.Fingerprint, error)
	FindFingerprintByBodyHash(ctx context.Context, hash string) (*model.Fingerprint, error)
	UpsertFingerprint(ctx context.Context, fp *model.Fingerprint) error
}

// RecentContentStore lists content newest first.
type RecentContentStore interface {
	ListRecentContent(ctx context.Context, since time.Time, limit int) ([]model.RecentContent, error)
}

// Config holds the tuning constants of the detector.
type Config struct {
	WindowDays      int
	SampleSize      int
	Threshold       float64
	ShortCircuit    float64
	TitleWeight     float64
	BodyWeight      float64
	MaxCompareRunes int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		WindowDays:      30,
		SampleSize:      100,
		Threshold:       0.85,
		ShortCircuit:    0.95,
		TitleWeight:     0.4,
		BodyWeight:      0.6,
		MaxCompareRunes: 1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.ShortCircuit <= 0 {
		c.ShortCircuit = d.ShortCircuit
	}
	if c.TitleWeight <= 0 && c.BodyWeight <= 0 {
		c.TitleWeight, c.BodyWeight = d.TitleWeight, d.BodyWeight
	}
	return c
}

// Detector checks candidates against the fingerprint and content stores.
// It holds no mutable state and is safe for concurrent use.
type Detector struct {
	fingerprints FingerprintStore
	recent       RecentContentStore
	cfg          Config
	norm         textnorm.Normalizer
	now          func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock sets the time source used for the recent-content window.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithNormalizer sets the locale-aware normalizer.
func WithNormalizer(n textnorm.Normalizer) Option {
	return func(d *Detector) { d.norm = n }
}

// New creates a Detector.
func New(fingerprints FingerprintStore, recent RecentContentStore, cfg Config, opts ...Option) *Detector {
	d := &Detector{
		fingerprints: fingerprints,
		recent:       recent,
		cfg:          cfg.withDefaults(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

func (d *Detector) validate(title, body string) error {
	if strings.TrimSpace(title) == "" {
		return model.Wrap(model.ErrInvalidInput, eris.New("dedup: title is empty"))
	}
	if textnorm.Clean(body) == "" {
		return model.Wrap(model.ErrInvalidInput, eris.New("dedup: body is empty"))
	}
	return nil
}

// IsExactDuplicate looks for a stored fingerprint with the same title or body digest.
// A title match wins when both digests match different rows.
func (d *Detector) IsExactDuplicate(ctx context.Context, title, body string) (*model.Verdict, error) {
	if err := d.validate(title, body); err != nil {
		return nil, err
	}

	byTitle, err := d.fingerprints.FindFingerprintByTitleHash(ctx, d.HashTitle(title))
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: lookup title hash"))
	}
	byBody, err := d.fingerprints.FindFingerprintByBodyHash(ctx, d.HashBody(body))
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: lookup body hash"))
	}

	if byTitle == nil && byBody == nil {
		return &model.Verdict{MatchType: model.MatchTypeUnique, Threshold: roundPct(d.cfg.Threshold)}, nil
	}

	v := &model.Verdict{
		IsDuplicate: true,
		MatchType:   model.MatchTypeExact,
		Similarity:  100,
		Threshold:   roundPct(d.cfg.Threshold),
		TitleMatch:  byTitle != nil,
		BodyMatch:   byBody != nil,
	}
	if byTitle != nil {
		v.MatchedID = &byTitle.ContentID
	} else {
		v.MatchedID = &byBody.ContentID
	}
	return v, nil
}

// IsSimilarToRecent scores the candidate against the newest content inside the
// configured window and reports a duplicate when the best score reaches the threshold.
// The scan stops early once a score reaches the short-circuit level.
func (d *Detector) IsSimilarToRecent(ctx context.Context, title, body string) (*model.Verdict, error) {
	if err := d.validate(title, body); err != nil {
		return nil, err
	}

	since := d.now().AddDate(0, 0, -d.cfg.WindowDays)
	recent, err := d.recent.ListRecentContent(ctx, since, d.cfg.SampleSize)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: list recent content"))
	}

	candTitle := d.norm.Similarity(title)
	candBody := truncateRunes(d.norm.Similarity(body), d.cfg.MaxCompareRunes)

	var best float64
	var bestID int64
	for _, rc := range recent {
		score := d.cfg.TitleWeight*Similarity(candTitle, d.norm.Similarity(rc.Title)) +
			d.cfg.BodyWeight*Similarity(candBody, truncateRunes(d.norm.Similarity(rc.Body), d.cfg.MaxCompareRunes))
		if score > best {
			best = score
			bestID = rc.ID
		}
		if score >= d.cfg.ShortCircuit {
			break
		}
	}

	v := &model.Verdict{
		Similarity: roundPct(best),
		MatchType:  model.MatchTypeUnique,
		Threshold:  roundPct(d.cfg.Threshold),
	}
	if best >= d.cfg.Threshold {
		v.IsDuplicate = true
		v.MatchType = model.MatchTypeSimilar
		v.MatchedID = &bestID
	}
	return v, nil
}

// CheckDuplicate runs the exact check and falls back to the similarity scan.
func (d *Detector) CheckDuplicate(ctx context.Context, title, body string) (*model.Verdict, error) {
	v, err := d.IsExactDuplicate(ctx, title, body)
	if err != nil {
		return nil, err
	}
	if v.IsDuplicate {
		return v, nil
	}
	return d.IsSimilarToRecent(ctx, title, body)
}

// RecordFingerprint stores the digests of a finalized content item, replacing any previous row.
func (d *Detector) RecordFingerprint(ctx context.Context, contentID int64, title, body string) error {
	if contentID <= 0 {
		return model.Wrap(model.ErrInvalidInput, eris.Errorf("dedup: invalid content id %d", contentID))
	}
	if err := d.validate(title, body); err != nil {
		return err
	}

	now := d.now()
	fp := &model.Fingerprint{
		ContentID: contentID,
		TitleHash: d.HashTitle(title),
		BodyHash:  d.HashBody(body),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.fingerprints.UpsertFingerprint(ctx, fp); err != nil {
		return model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "dedup: upsert fingerprint %d", contentID))
	}
	return nil
}

func roundPct(score float64) float64 {
	return math.Round(score*100*100) / 100
}
