package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then records ARGV[4] when room is left.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, ARGV[4])
		redis.call('PEXPIRE', key, window + 1000)
		return {1, limit - current - 1}
	end

	return {0, 0}
`)

// RedisLimiter is a sliding-window limiter shared by every process using the same Redis.
type RedisLimiter struct {
	client     *redis.Client
	config     *Config
	ownsClient bool
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	l := NewRedisLimiterFromClient(client, cfg)
	l.ownsClient = true
	return l, nil
}

// NewRedisLimiterFromClient wraps an existing client. Close leaves the client open.
func NewRedisLimiterFromClient(client *redis.Client, cfg *Config) *RedisLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &RedisLimiter{client: client, config: cfg}
}

func redisKey(key string) string {
	return "ratelimit:" + key
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixMilli()

	result, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey(key)},
		l.config.Requests, l.config.Window.Milliseconds(), now, uuid.NewString()).Slice()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}

	if len(result) == 0 {
		return false, fmt.Errorf("unexpected empty result from redis script")
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from redis script")
	}

	return allowed == 1, nil
}

func (l *RedisLimiter) Wait(ctx context.Context, key string) error {
	return waitLoop(ctx, l.config.RetryInterval, func() (bool, error) {
		return l.Allow(ctx, key)
	})
}

func (l *RedisLimiter) GetInfo(ctx context.Context, key string) (*LimitInfo, error) {
	now := time.Now()
	windowStart := now.Add(-l.config.Window).UnixMilli()

	count, err := l.client.ZCount(ctx, redisKey(key), "("+strconv.FormatInt(windowStart, 10), "+inf").Result()
	if err != nil {
		return nil, err
	}

	return &LimitInfo{
		Limit:     l.config.Requests,
		Remaining: max(l.config.Requests-int(count), 0),
		ResetAt:   now.Add(l.config.Window),
	}, nil
}

func (l *RedisLimiter) Close() error {
	if !l.ownsClient {
		return nil
	}
	return l.client.Close()
}
