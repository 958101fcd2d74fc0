package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/eventgate/pkg/logger"
)

func TestLocalLimiter_TokenBucket(t *testing.T) {
	l := NewLocalLimiter(RateLimitConfig{RequestsPerSecond: 2, BurstSize: 3})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "d1")
		require.NoError(t, err)
		assert.True(t, ok, "burst request %d", i)
	}
	ok, _ := l.Allow(ctx, "d1")
	assert.False(t, ok, "bucket exhausted")

	ok, _ = l.Allow(ctx, "d2")
	assert.True(t, ok, "buckets are per key")

	now = now.Add(500 * time.Millisecond)
	ok, _ = l.Allow(ctx, "d1")
	assert.True(t, ok, "one token refilled")
	ok, _ = l.Allow(ctx, "d1")
	assert.False(t, ok)
}

func TestLocalLimiter_SweepsIdleBuckets(t *testing.T) {
	l := NewLocalLimiter(RateLimitConfig{RequestsPerSecond: 1, EntryTTL: time.Minute})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "d1")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "d2")

	assert.NotContains(t, l.buckets, "d1")
	assert.Contains(t, l.buckets, "d2")
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func rateLimitedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.POST("/scan", mw, func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func postScan(r *gin.Engine, device string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/scan", nil)
	if device != "" {
		req.Header.Set(HeaderDeviceID, device)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_Middleware(t *testing.T) {
	r := rateLimitedRouter(RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, Logger: logger.NewNop()}))

	assert.Equal(t, http.StatusOK, postScan(r, "gate-1").Code)
	w := postScan(r, "gate-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")

	assert.Equal(t, http.StatusOK, postScan(r, "gate-2").Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	r := rateLimitedRouter(RateLimit(RateLimitConfig{}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, postScan(r, "gate-1").Code)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := rateLimitedRouter(RateLimitWith(errLimiter{}, RateLimitConfig{RequestsPerSecond: 1, Logger: logger.NewNop()}))
	assert.Equal(t, http.StatusOK, postScan(r, "gate-1").Code)
}

func TestRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/scan", nil)
	c.Request.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "ip:10.1.2.3", RateLimitKey(c))

	c.Request.Header.Set(HeaderDeviceID, "gate-7")
	assert.Equal(t, "device:gate-7", RateLimitKey(c))
}
