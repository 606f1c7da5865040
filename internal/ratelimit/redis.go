package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the request
// if fewer than limit remain. Each admitted request is a ZSET member scored
// by its arrival time in milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter admits at most limit requests per key in any sliding window.
type RedisLimiter struct {
	client    redis.UniversalClient
	limit     int
	window    time.Duration
	prefix    string
	ownClient bool
	now       func() time.Time
}

// NewRedisLimiter wraps an existing client. The caller keeps ownership of it.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if limit <= 0 {
		return nil, errors.New("ratelimit: limit must be greater than 0")
	}
	if window < time.Millisecond {
		return nil, errors.New("ratelimit: window must be at least 1ms")
	}
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "tortoise:ratelimit:",
		now:    time.Now,
	}, nil
}

// DialRedis connects to url (redis://...), checks the connection and returns
// a limiter that closes the client on Close.
func DialRedis(ctx context.Context, url string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	l, err := NewRedisLimiter(client, limit, window)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	l.ownClient = true
	return l, nil
}

// Allow records the request and reports whether it fits in the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis sliding window: %w", err)
	}
	return res == 1, nil
}

// Close closes the client if the limiter dialed it.
func (l *RedisLimiter) Close() error {
	if !l.ownClient {
		return nil
	}
	return l.client.Close()
}
