package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/model"
)

const defaultQueueKey = "hubizz:jobs"

// RedisQueue shares jobs between processes through a Redis list. The API
// server submits and workers drain the list into their Pool.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue wraps client. An empty key uses "hubizz:jobs".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &RedisQueue{client: client, key: key, wait: 5 * time.Second}
}

// Submit pushes job onto the list.
func (q *RedisQueue) Submit(ctx context.Context, job model.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "jobs: marshal job")
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return model.Wrap(model.ErrStoreUnavailable, eris.Wrapf(err, "jobs: push %s", job.Kind))
	}
	return nil
}

// Len returns the number of queued jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return n, eris.Wrap(err, "jobs: queue length")
}

// Pump moves jobs from Redis into pool until ctx is done. While the pool is
// full the popped job is held and resubmitted; on shutdown it is pushed back.
func (q *RedisQueue) Pump(ctx context.Context, pool Submitter) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := q.client.BRPop(ctx, q.wait, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			zap.L().Warn("jobs: redis pop failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}

		// BRPOP replies with the key and the value.
		raw := res[1]
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			zap.L().Error("jobs: dropping malformed job", zap.String("raw", raw), zap.Error(err))
			continue
		}
		for {
			err := pool.Submit(ctx, job)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrQueueFull) {
				return err
			}
			if !sleep(ctx, 100*time.Millisecond) {
				if err := q.client.RPush(context.WithoutCancel(ctx), q.key, raw).Err(); err != nil {
					zap.L().Error("jobs: requeue on shutdown failed", zap.String("kind", string(job.Kind)), zap.Error(err))
				}
				return nil
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
