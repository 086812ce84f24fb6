package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AttemptLimiter tracks failed capability-token attempts per key.
type AttemptLimiter interface {
	Blocked(ctx context.Context, key string) bool
	RecordFailure(ctx context.Context, key string)
}

// NoopLimiter never blocks.
type NoopLimiter struct{}

func (NoopLimiter) Blocked(context.Context, string) bool { return false }

func (NoopLimiter) RecordFailure(context.Context, string) {}

// RedisAttemptLimiter counts failures in Redis with a fixed window per key.
// Redis errors fail open: a cache outage must not lock customers out.
type RedisAttemptLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	prefix string
	logger *zap.Logger
}

const defaultAttemptWindow = 15 * time.Minute

// NewRedisAttemptLimiter builds a limiter. max <= 0 disables blocking.
func NewRedisAttemptLimiter(client *redis.Client, max int, window time.Duration, logger *zap.Logger) *RedisAttemptLimiter {
	if window <= 0 {
		window = defaultAttemptWindow
	}
	return &RedisAttemptLimiter{
		client: client,
		max:    int64(max),
		window: window,
		prefix: "recovery:token_failures:",
		logger: logger,
	}
}

// Blocked reports whether key has reached the failure ceiling.
func (l *RedisAttemptLimiter) Blocked(ctx context.Context, key string) bool {
	if l == nil || l.client == nil || l.max <= 0 {
		return false
	}
	count, err := l.client.Get(ctx, l.prefix+key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("token attempt lookup failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return count >= l.max
}

// recordFailureScript increments the counter and gives it a TTL whenever it
// has none, so a key can never outlive its window.
var recordFailureScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RecordFailure increments the failure counter, starting the window on first failure.
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) {
	if l == nil || l.client == nil || l.max <= 0 {
		return
	}
	err := recordFailureScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Err()
	if err != nil {
		l.logger.Warn("token attempt record failed", zap.String("key", key), zap.Error(err))
	}
}
