package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	Limit  int           // Maximum requests allowed
	Window time.Duration // Time window for the limit
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter implements sliding window rate limiting using Redis sorted
// sets, one set per key.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Allow checks if a request is allowed under the rate limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	return r.AllowN(ctx, key, 1)
}

// allowScript trims the window, counts it and records n new entries in one
// step, so concurrent callers cannot both claim the last slot. It returns
// {allowed, count before the call}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[2])
local n = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", ARGV[1])
local count = redis.call("ZCARD", key)
if count + n > limit then
  return {0, count}
end

for i = 1, n do
  redis.call("ZADD", key, ARGV[4], ARGV[5] .. "-" .. i)
end
redis.call("PEXPIRE", key, ARGV[6])
return {1, count}
`)

// AllowN checks if n requests are allowed under the rate limit. Rejected
// requests do not consume the window.
func (r *RateLimiter) AllowN(ctx context.Context, key string, n int) (*RateLimitResult, error) {
	now := r.now()
	windowStart := now.Add(-r.config.Window)
	resetAt := now.Add(r.config.Window)

	redisKey := "ratelimit:" + key

	// Scores are microseconds so they stay exact as Lua doubles.
	res, err := allowScript.Run(ctx, r.client.rdb, []string{redisKey},
		windowStart.UnixMicro(),
		r.config.Limit,
		n,
		now.UnixMicro(),
		uuid.NewString(),
		(r.config.Window + time.Second).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("redis rate limit script returned %d values", len(res))
	}

	allowed := res[0] == 1
	currentCount := int(res[1])
	remaining := r.config.Limit - currentCount

	if !allowed {
		r.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int("current", currentCount),
			zap.Int("limit", r.config.Limit),
		)
		return &RateLimitResult{
			Allowed:   false,
			Limit:     r.config.Limit,
			Remaining: max(0, remaining),
			ResetAt:   resetAt,
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Limit:     r.config.Limit,
		Remaining: remaining - n,
		ResetAt:   resetAt,
	}, nil
}
