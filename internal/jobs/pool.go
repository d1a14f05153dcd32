package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
)

// ErrQueueFull is returned by Submit when the pool cannot accept more work.
var ErrQueueFull = errors.New("jobs: queue full")

// ErrPoolStopped is recorded on jobs still queued when Serve returns.
var ErrPoolStopped = errors.New("jobs: pool stopped before job ran")

// DLQStore persists dead-lettered jobs. store.Store satisfies it.
type DLQStore interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
}

// PoolConfig sizes the pool.
type PoolConfig struct {
	Concurrency int
	MaxAttempts int
	QueueSize   int
	// Retry overrides the per-job retry policy derived from MaxAttempts.
	Retry *resilience.RetryConfig
}

// Pool runs jobs on at most Concurrency goroutines.
type Pool struct {
	handlers    map[model.JobKind]Handler
	dlq         DLQStore
	concurrency int
	maxAttempts int
	retry       resilience.RetryConfig
	queue       chan model.Job
	now         func() time.Time
}

// NewPool creates a Pool. Register handlers before calling Serve or Run.
func NewPool(dlq DLQStore, cfg PoolConfig) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	p := &Pool{
		handlers:    make(map[model.JobKind]Handler),
		dlq:         dlq,
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		retry:       resilience.JobRetryConfig(cfg.MaxAttempts, "jobs"),
		queue:       make(chan model.Job, cfg.QueueSize),
		now:         time.Now,
	}
	if cfg.Retry != nil {
		p.retry = *cfg.Retry
	}
	return p
}

// Register sets the handler for kind.
func (p *Pool) Register(kind model.JobKind, h Handler) {
	p.handlers[kind] = h
}

// Submit queues job for Serve without blocking.
func (p *Pool) Submit(_ context.Context, job model.Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "jobs: submit %s", job.Kind)
	}
}

// Serve runs queued jobs until ctx is done, then waits for running jobs.
// Jobs still queued at that point are dead-lettered as transient failures so
// RetryDLQ picks them up later.
func (p *Pool) Serve(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	zap.L().Info("jobs: pool started", zap.Int("concurrency", p.concurrency))
	for {
		select {
		case <-ctx.Done():
			err := g.Wait()
			n := p.drain(ctx)
			zap.L().Info("jobs: pool stopped", zap.Int("drained", n))
			return err
		case job := <-p.queue:
			g.Go(func() error {
				_ = p.Run(ctx, job) //nolint:errcheck // failures are logged and dead-lettered
				return nil
			})
		}
	}
}

func (p *Pool) drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case job := <-p.queue:
			n++
			if p.dlq == nil {
				zap.L().Warn("jobs: dropping queued job", zap.String("kind", string(job.Kind)))
				continue
			}
			p.deadLetter(ctx, job, ErrPoolStopped)
		default:
			return n
		}
	}
}

// Summary counts the outcome of RunAll.
type Summary struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// RunAll runs jobs concurrently and waits for all of them. A failed job does
// not stop the others.
func (p *Pool) RunAll(ctx context.Context, jobs []model.Job) Summary {
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	var succeeded, failed atomic.Int64
	for _, job := range jobs {
		g.Go(func() error {
			if err := p.Run(ctx, job); err != nil {
				failed.Add(1)
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return Summary{Succeeded: succeeded.Load(), Failed: failed.Load()}
}

// Run executes job with retries. After the last failed attempt the job is
// dead-lettered and the error returned.
func (p *Pool) Run(ctx context.Context, job model.Job) error {
	log := zap.L().With(zap.String("kind", string(job.Kind)))

	h, ok := p.handlers[job.Kind]
	if !ok {
		err := model.Wrap(model.ErrConfiguration, eris.Errorf("jobs: no handler for %q", job.Kind))
		p.deadLetter(ctx, job, err)
		return err
	}

	start := time.Now()
	err := resilience.Do(ctx, p.retry, func(ctx context.Context) error {
		return h(ctx, job.Payload)
	})
	if err != nil {
		log.Error("jobs: job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		p.deadLetter(ctx, job, err)
		return err
	}
	log.Debug("jobs: job complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *Pool) deadLetter(ctx context.Context, job model.Job, jobErr error) {
	if p.dlq == nil {
		return
	}
	entry := resilience.NewDLQEntry(job, jobErr, p.maxAttempts, p.now())
	if err := p.dlq.EnqueueDLQ(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("jobs: dead letter failed",
			zap.String("kind", string(job.Kind)),
			zap.NamedError("job_error", jobErr),
			zap.Error(err),
		)
		return
	}
	zap.L().Warn("jobs: job dead-lettered",
		zap.String("kind", string(job.Kind)),
		zap.String("dlq_id", entry.ID),
		zap.String("error_type", entry.ErrorType),
	)
}

// RetryResult counts the outcome of RetryDLQ.
type RetryResult struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// RetryDLQ runs every due dead letter once. Successes leave the queue and
// failures are rescheduled with a longer backoff.
func (p *Pool) RetryDLQ(ctx context.Context, limit int) (RetryResult, error) {
	var out RetryResult
	if p.dlq == nil {
		return out, nil
	}
	entries, err := p.dlq.ListDLQ(ctx, resilience.DLQFilter{DueOnly: true, Limit: limit})
	if err != nil {
		return out, eris.Wrap(err, "jobs: list dead letters")
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		out.Retried++
		log := zap.L().With(zap.String("dlq_id", e.ID), zap.String("kind", string(e.Job.Kind)))

		h, ok := p.handlers[e.Job.Kind]
		var runErr error
		if !ok {
			runErr = eris.Errorf("jobs: no handler for %q", e.Job.Kind)
		} else {
			runErr = h(ctx, e.Job.Payload)
		}

		if runErr == nil {
			out.Succeeded++
			if err := p.dlq.RemoveDLQ(ctx, e.ID); err != nil {
				return out, eris.Wrapf(err, "jobs: remove dead letter %s", e.ID)
			}
			log.Info("jobs: dead letter retried")
			continue
		}

		out.Failed++
		e.RetryCount++
		next := p.now().Add(e.Backoff())
		if err := p.dlq.IncrementDLQRetry(ctx, e.ID, next, runErr.Error()); err != nil {
			return out, eris.Wrapf(err, "jobs: reschedule dead letter %s", e.ID)
		}
		log.Warn("jobs: dead letter retry failed",
			zap.Int("retry_count", e.RetryCount),
			zap.Time("next_retry_at", next),
			zap.Error(runErr),
		)
	}
	return out, nil
}
