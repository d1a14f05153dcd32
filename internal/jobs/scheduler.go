package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/store"
)

// SchedulerStore is what the scheduler reads to find work.
type SchedulerStore interface {
	store.FeedLister
	ListRecentContent(ctx context.Context, since time.Time, limit int) ([]model.RecentContent, error)
}

// ScheduleConfig holds cron specs. An empty spec disables that task.
type ScheduleConfig struct {
	ImportSchedule   string
	ProductsSchedule string
	DLQSchedule      string
	// ProductsLookback bounds the content reprocessed by the products task.
	ProductsLookback time.Duration
	ProductsLimit    int
	DLQBatch         int
}

// Scheduler queues periodic work on a Submitter.
type Scheduler struct {
	cron  *cron.Cron
	store SchedulerStore
	queue Submitter
	pool  *Pool
	cfg   ScheduleConfig
	now   func() time.Time
}

// NewScheduler creates a Scheduler. pool may be nil when dead letters are
// retried elsewhere.
func NewScheduler(st SchedulerStore, queue Submitter, pool *Pool, cfg ScheduleConfig) *Scheduler {
	if cfg.ProductsLookback <= 0 {
		cfg.ProductsLookback = 24 * time.Hour
	}
	if cfg.ProductsLimit <= 0 {
		cfg.ProductsLimit = 100
	}
	if cfg.DLQBatch <= 0 {
		cfg.DLQBatch = 50
	}
	return &Scheduler{
		cron:  cron.New(),
		store: st,
		queue: queue,
		pool:  pool,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Start registers the configured tasks and starts the cron runner. Tasks run
// with ctx until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	add := func(name, spec string, task func(context.Context) error) error {
		if spec == "" {
			return nil
		}
		_, err := s.cron.AddFunc(spec, func() {
			if err := task(ctx); err != nil {
				zap.L().Error("jobs: scheduled task failed", zap.String("task", name), zap.Error(err))
			}
		})
		if err != nil {
			return model.Wrap(model.ErrConfiguration, eris.Wrapf(err, "jobs: schedule %s %q", name, spec))
		}
		zap.L().Info("jobs: task scheduled", zap.String("task", name), zap.String("schedule", spec))
		return nil
	}

	if err := add("import", s.cfg.ImportSchedule, func(ctx context.Context) error {
		_, err := s.EnqueueDueFeeds(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := add("products", s.cfg.ProductsSchedule, func(ctx context.Context) error {
		_, err := s.EnqueueRecentProducts(ctx)
		return err
	}); err != nil {
		return err
	}
	if s.pool != nil {
		if err := add("dlq", s.cfg.DLQSchedule, func(ctx context.Context) error {
			_, err := s.pool.RetryDLQ(ctx, s.cfg.DLQBatch)
			return err
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron runner. The returned context is done once running tasks finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// EnqueueDueFeeds queues an import for every due feed, highest priority first.
func (s *Scheduler) EnqueueDueFeeds(ctx context.Context) (int, error) {
	feeds, err := store.ListDueFeeds(ctx, s.store, s.now())
	if err != nil {
		return 0, eris.Wrap(err, "jobs: list due feeds")
	}
	n := 0
	for _, f := range feeds {
		if err := s.queue.Submit(ctx, ImportFeedJob(f.ID)); err != nil {
			return n, err
		}
		n++
	}
	zap.L().Info("jobs: due feeds queued", zap.Int("feeds", n))
	return n, nil
}

// EnqueueRecentProducts queues product processing for content created within
// the lookback window.
func (s *Scheduler) EnqueueRecentProducts(ctx context.Context) (int, error) {
	recent, err := s.store.ListRecentContent(ctx, s.now().Add(-s.cfg.ProductsLookback), s.cfg.ProductsLimit)
	if err != nil {
		return 0, eris.Wrap(err, "jobs: list recent content")
	}
	n := 0
	for _, c := range recent {
		if err := s.queue.Submit(ctx, ProcessProductsJob(c.ID)); err != nil {
			return n, err
		}
		n++
	}
	zap.L().Info("jobs: product processing queued", zap.Int("contents", n))
	return n, nil
}
