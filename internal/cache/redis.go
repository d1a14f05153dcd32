package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisConfig holds connection settings for the Redis cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis stores each namespace as a hash so one DEL invalidates it.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "cache: ping redis %s", cfg.Addr)
	}
	return NewRedisWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "hubizz:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(namespace string) string {
	return r.prefix + namespace
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, namespace, field string) ([]byte, bool, error) {
	v, err := r.client.HGet(ctx, r.key(namespace), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: redis hget")
	}
	return v, true, nil
}

// Set implements Cache. The TTL is applied only when the namespace has none yet.
func (r *Redis) Set(ctx context.Context, namespace, field string, value []byte) error {
	key := r.key(namespace)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, field, value)
	if r.ttl > 0 {
		pipe.ExpireNX(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrap(err, "cache: redis hset")
	}
	return nil
}

// Delete implements Cache.
func (r *Redis) Delete(ctx context.Context, namespace string) error {
	if err := r.client.Del(ctx, r.key(namespace)).Err(); err != nil {
		return eris.Wrap(err, "cache: redis del")
	}
	return nil
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}
