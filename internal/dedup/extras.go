package dedup

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
)

// ImportLedger answers whether a source item was imported before.
type ImportLedger interface {
	ContentExistsBySourceURL(ctx context.Context, url string) (bool, error)
	ContentExistsByGUID(ctx context.Context, guid string) (bool, error)
}

// FingerprintMaintainer exposes aggregate and cleanup operations on fingerprints.
type FingerprintMaintainer interface {
	FingerprintStats(ctx context.Context) (*model.DedupStats, error)
	DeleteOrphanedFingerprints(ctx context.Context, before time.Time) (int64, error)
}

const (
	similarTitleScan      = 200
	similarTitleThreshold = 0.5
)

// IsURLImported reports whether any content already carries url as its source.
func IsURLImported(ctx context.Context, ledger ImportLedger, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	ok, err := ledger.ContentExistsBySourceURL(ctx, url)
	if err != nil {
		return false, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: lookup source url"))
	}
	return ok, nil
}

// IsGUIDImported reports whether any content already carries guid.
func IsGUIDImported(ctx context.Context, ledger ImportLedger, guid string) (bool, error) {
	if guid == "" {
		return false, nil
	}
	ok, err := ledger.ContentExistsByGUID(ctx, guid)
	if err != nil {
		return false, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: lookup guid"))
	}
	return ok, nil
}

// BulkCheck runs CheckDuplicate for every candidate, preserving order.
// The first error aborts the batch.
func (d *Detector) BulkCheck(ctx context.Context, candidates []model.CandidateText) ([]model.Verdict, error) {
	out := make([]model.Verdict, 0, len(candidates))
	for i, c := range candidates {
		v, err := d.CheckDuplicate(ctx, c.Title, c.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "dedup: candidate %d", i)
		}
		out = append(out, *v)
	}
	return out, nil
}

// FindSimilarTitles returns up to limit recent items whose title scores above 0.5
// against title, most similar first.
func (d *Detector) FindSimilarTitles(ctx context.Context, title string, limit int) ([]model.SimilarTitle, error) {
	if limit <= 0 {
		limit = 5
	}
	recent, err := d.recent.ListRecentContent(ctx, time.Time{}, similarTitleScan)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: list recent content"))
	}

	want := d.norm.Similarity(title)
	var hits []model.SimilarTitle
	for _, rc := range recent {
		s := Similarity(want, d.norm.Similarity(rc.Title))
		if s > similarTitleThreshold {
			hits = append(hits, model.SimilarTitle{ContentID: rc.ID, Title: rc.Title, Similarity: roundPct(s)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Statistics returns fingerprint counts and the share of rows that collide on a digest.
func Statistics(ctx context.Context, m FingerprintMaintainer) (*model.DedupStats, error) {
	stats, err := m.FingerprintStats(ctx)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: fingerprint stats"))
	}
	if stats.TotalHashes > 0 {
		dup := float64(stats.DuplicateBodyGroups+stats.DuplicateTitleGroups) / float64(stats.TotalHashes)
		stats.DuplicatePercentage = roundPct(dup)
	}
	return stats, nil
}

// CleanupOrphaned deletes fingerprints older than days whose content no longer exists.
func (d *Detector) CleanupOrphaned(ctx context.Context, m FingerprintMaintainer, days int) (int64, error) {
	if days <= 0 {
		days = 90
	}
	before := d.now().AddDate(0, 0, -days)
	n, err := m.DeleteOrphanedFingerprints(ctx, before)
	if err != nil {
		return 0, model.Wrap(model.ErrStoreUnavailable, eris.Wrap(err, "dedup: cleanup orphaned fingerprints"))
	}
	zap.L().Info("dedup: cleaned orphaned fingerprints", zap.Int64("deleted", n), zap.Int("days", days))
	return n, nil
}
