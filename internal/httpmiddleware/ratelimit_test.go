package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() { gin.SetMode(gin.TestMode) }

func allowed(l *Limiter, key string) bool {
	ok, _ := l.take(key)
	return ok
}

func TestLimiterRefills(t *testing.T) {
	l := NewLimiter(60, 2)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, allowed(l, "a"))
	assert.True(t, allowed(l, "a"))
	assert.False(t, allowed(l, "a"))
	assert.True(t, allowed(l, "b"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, allowed(l, "a"))
	assert.False(t, allowed(l, "a"))

	now = now.Add(time.Hour)
	assert.True(t, allowed(l, "a"))
	assert.True(t, allowed(l, "a"))
	assert.False(t, allowed(l, "a"))
}

func TestLimiterReportsWait(t *testing.T) {
	l := NewLimiter(30, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.take("a")
	assert.True(t, ok)
	ok, wait := l.take("a")
	assert.False(t, ok)
	assert.InDelta(t, 2.0, wait.Seconds(), 0.001)
}

func TestLimiterPrunesFullBuckets(t *testing.T) {
	l := NewLimiter(60, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	for i := 0; i < pruneAfter; i++ {
		l.buckets[string(rune(i))] = &bucket{tokens: 0, last: now}
	}

	now = now.Add(time.Minute)
	assert.True(t, allowed(l, "fresh"))
	assert.Len(t, l.buckets, 1)
}

func TestMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeaders(), NewLimiter(1, 1).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestZeroRateDisablesLimit(t *testing.T) {
	r := gin.New()
	r.Use(NewLimiter(0, 0).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
