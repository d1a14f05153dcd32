package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
)

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Feed imports (within lookback window).
	ImportTotal     int     `json:"import_total"`
	ImportCompleted int     `json:"import_completed"`
	ImportFailed    int     `json:"import_failed"`
	ImportRunning   int     `json:"import_running"`
	ImportFailRate  float64 `json:"import_fail_rate"`
	ItemsImported   int     `json:"items_imported"`
	ItemsSkipped    int     `json:"items_skipped"`

	// AI generation usage (within lookback window).
	GenerationCalls  int     `json:"generation_calls"`
	GenerationTokens int     `json:"generation_tokens"`
	GenerationCost   float64 `json:"generation_cost_usd"`

	DLQDepth int `json:"dlq_depth"`

	// Active feeds whose consecutive failure count reached the threshold.
	FailingFeeds []FailingFeed `json:"failing_feeds,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// FailingFeed identifies a feed that keeps failing to import.
type FailingFeed struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	FailCount int    `json:"fail_count"`
}

// Source is the subset of the store the collector reads.
type Source interface {
	ImportStats(ctx context.Context, since time.Time) (*model.ImportStats, error)
	GenerationStats(ctx context.Context, since time.Time) (*model.GenerationStats, error)
	ListFeeds(ctx context.Context, activeOnly bool) ([]model.Feed, error)
	CountDLQ(ctx context.Context) (int, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src               Source
	feedFailThreshold int
	now               func() time.Time
}

// NewCollector creates a metrics collector. Feeds with at least
// feedFailThreshold consecutive failures are reported; zero disables the check.
func NewCollector(src Source, feedFailThreshold int) *Collector {
	return &Collector{
		src:               src,
		feedFailThreshold: feedFailThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Collect gathers a snapshot of pipeline metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	is, err := c.src.ImportStats(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: import stats")
	}
	snap.ImportTotal = is.Total
	snap.ImportCompleted = is.Completed
	snap.ImportFailed = is.Failed
	snap.ImportRunning = is.Running
	snap.ItemsImported = is.ItemsImported
	snap.ItemsSkipped = is.ItemsSkipped
	if finished := is.Completed + is.Failed; finished > 0 {
		snap.ImportFailRate = float64(is.Failed) / float64(finished)
	}

	gs, err := c.src.GenerationStats(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: generation stats")
	}
	snap.GenerationCalls = gs.Calls
	snap.GenerationTokens = gs.Tokens
	snap.GenerationCost = gs.CostUSD

	if c.feedFailThreshold > 0 {
		feeds, err := c.src.ListFeeds(ctx, true)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list feeds")
		}
		for _, f := range feeds {
			if f.FailCount >= c.feedFailThreshold {
				snap.FailingFeeds = append(snap.FailingFeeds, FailingFeed{ID: f.ID, URL: f.URL, FailCount: f.FailCount})
			}
		}
	}

	depth, err := c.src.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = depth

	return snap, nil
}
