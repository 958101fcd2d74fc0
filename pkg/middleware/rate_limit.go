package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prohmpiriya/eventgate/pkg/logger"
	"github.com/prohmpiriya/eventgate/pkg/redis"
	"github.com/prohmpiriya/eventgate/pkg/response"
)

// RateLimitConfig holds per-device token bucket settings
type RateLimitConfig struct {
	// RequestsPerSecond refills the bucket; zero disables limiting
	RequestsPerSecond int
	BurstSize         int
	// Redis shares buckets across replicas when set
	Redis     *redis.Client
	KeyPrefix string
	// EntryTTL drops idle local buckets
	EntryTTL time.Duration
	Logger   *logger.Logger
}

// DefaultRateLimitConfig returns a limit suited to a handheld scanner
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
		KeyPrefix:         "eventgate:ratelimit:",
		EntryTTL:          time.Minute,
	}
}

// Limiter decides whether one more request for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// LocalLimiter keeps token buckets in process memory
type LocalLimiter struct {
	rate    float64
	burst   float64
	ttl     time.Duration
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	swept   time.Time
}

// NewLocalLimiter creates an in-memory limiter
func NewLocalLimiter(cfg RateLimitConfig) *LocalLimiter {
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LocalLimiter{
		rate:    float64(cfg.RequestsPerSecond),
		burst:   float64(burstOf(cfg)),
		ttl:     ttl,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastUpdate: now}
		l.buckets[key] = b
	}

	b.tokens = min(l.burst, b.tokens+now.Sub(b.lastUpdate).Seconds()*l.rate)
	b.lastUpdate = now
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// sweep drops idle buckets at most once per ttl
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.ttl {
		return
	}
	l.swept = now
	cutoff := now.Add(-l.ttl)
	for k, b := range l.buckets {
		if b.lastUpdate.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

const tokenBucketScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", key, "tokens", "last_update")
local tokens = tonumber(data[1]) or burst
local last_update = tonumber(data[2]) or now

tokens = math.min(burst, tokens + (now - last_update) * rate)
local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end
redis.call("HSET", key, "tokens", tokens, "last_update", now)
redis.call("EXPIRE", key, ttl)
return allowed
`

// RedisLimiter keeps token buckets in Redis so every replica sees the same budget
type RedisLimiter struct {
	client *redis.Client
	rate   int
	burst  int
	prefix string
	ttl    time.Duration
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(cfg RateLimitConfig) *RedisLimiter {
	ttl := cfg.EntryTTL
	if ttl < time.Second {
		ttl = time.Minute
	}
	return &RedisLimiter{
		client: cfg.Redis,
		rate:   cfg.RequestsPerSecond,
		burst:  burstOf(cfg),
		prefix: cfg.KeyPrefix,
		ttl:    ttl,
	}
}

// Allow takes one token from key's bucket atomically
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := l.client.Eval(ctx, tokenBucketScript, []string{l.prefix + key},
		l.rate, l.burst, now, int(l.ttl.Seconds()))
	if err != nil {
		return false, err
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected rate limit result %T", res)
	}
	return allowed == 1, nil
}

func burstOf(cfg RateLimitConfig) int {
	if cfg.BurstSize > 0 {
		return cfg.BurstSize
	}
	return cfg.RequestsPerSecond
}

// RateLimitKey identifies the scanning device, falling back to the client IP
func RateLimitKey(c *gin.Context) string {
	if id := c.GetHeader(HeaderDeviceID); id != "" {
		return "device:" + id
	}
	return "ip:" + ClientIP(c)
}

// RateLimit throttles requests per device. Limiter errors let the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	var limiter Limiter
	if cfg.Redis != nil {
		limiter = NewRedisLimiter(cfg)
	} else {
		limiter = NewLocalLimiter(cfg)
	}
	return RateLimitWith(limiter, cfg)
}

// RateLimitWith builds the middleware around an existing limiter
func RateLimitWith(limiter Limiter, cfg RateLimitConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return func(c *gin.Context) {
		key := RateLimitKey(c)
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithContext(c.Request.Context()).Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			allowed = true
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerSecond))
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				response.Error(response.ErrCodeTooManyReqs, "Too many scans from this device, retry in a moment"))
			return
		}

		c.Next()
	}
}
