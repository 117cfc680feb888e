package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"

	"github.com/decisionstack/decision-engine/internal/metrics"
	"github.com/decisionstack/decision-engine/internal/utils"
)

// RedisConfig holds connection parameters for the Redis-backed queue.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	Key         string
	DialTimeout time.Duration
	PopTimeout  time.Duration
}

// RedisQueue implements Queue on a Redis list (LPUSH/BRPOP), standing in for
// a full message broker. Work items survive engine restarts.
type RedisQueue struct {
	client     *redis.Client
	key        string
	popTimeout time.Duration
}

// NewRedisQueue connects to Redis and pings it, failing fast when the broker
// is unreachable.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.Key == "" {
		cfg.Key = "decision-engine:jobs"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, utils.NewAppError("queue.connect", "ping redis", err)
	}

	return &RedisQueue{client: client, key: cfg.Key, popTimeout: cfg.PopTimeout}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.QueueDepthInc()
	return nil
}

// Dequeue blocks in short BRPOP intervals so context cancellation is honored
// between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		vals, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(vals) != 2 {
			continue
		}
		metrics.QueueDepthDec()
		return vals[1], nil
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
