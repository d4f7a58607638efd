package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisSlidingScript trims the window, counts, and records the hit when allowed.
// Returns {allowed, count, oldestMillis}.
var redisSlidingScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count >= limit then
  local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
  return {0, count, tonumber(oldest[2])}
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
local first = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
return {1, count + 1, tonumber(first[2])}
`)

// RedisLimiter implements a sliding-window rate limiter backed by a Redis sorted set.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request fits the window ending at now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || window <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	nowMillis := now.UnixMilli()
	member := strconv.FormatInt(nowMillis, 10) + "-" + uuid.NewString()
	res, errEval := redisSlidingScript.Run(ctx, l.client, []string{l.buildKey(key)},
		nowMillis, window.Milliseconds(), limit, member).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	values, ok := res.([]any)
	if !ok || len(values) != 3 {
		return Result{}, errors.New("rate limit redis: unexpected response shape")
	}
	allowed, okAllowed := values[0].(int64)
	count, okCount := values[1].(int64)
	oldest, okOldest := values[2].(int64)
	if !okAllowed || !okCount || !okOldest {
		return Result{}, errors.New("rate limit redis: unexpected response type")
	}
	reset := time.UnixMilli(oldest).Add(window).UTC()
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: allowed == 1, Limit: limit, Remaining: remaining, Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}
