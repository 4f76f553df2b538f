package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts a hit for key and reports whether it is within the limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit rejects requests over the limit with 429. When the limiter itself
// fails, failOpen decides between serving the request and answering 503.
func RateLimit(l Limiter, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
				return
			}
			if !ok {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MemoryRateLimiter is a per-process fixed-window limiter.
type MemoryRateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int
	resetTime time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryRateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || now.After(v.resetTime) {
		if len(rl.visitors) > 10_000 {
			rl.evictExpired(now)
		}
		rl.visitors[key] = &visitor{count: 1, resetTime: now.Add(rl.window)}
		return true, nil
	}
	if v.count >= rl.limit {
		return false, nil
	}
	v.count++
	return true, nil
}

func (rl *MemoryRateLimiter) evictExpired(now time.Time) {
	for k, v := range rl.visitors {
		if now.After(v.resetTime) {
			delete(rl.visitors, k)
		}
	}
}

// RedisRateLimiter is a fixed-window limiter shared by every instance that
// points at the same Redis.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := redisFixedWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + ":" + key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	var count int64
	switch v := res.(type) {
	case int64:
		count = v
	case string:
		count, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unexpected redis script result type %T", res)
	}
	return count <= int64(rl.limit), nil
}
