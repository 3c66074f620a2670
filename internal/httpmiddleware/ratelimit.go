package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// pruneAfter is how many tracked clients trigger a sweep of idle buckets.
const pruneAfter = 10000

// Limiter is an in-memory per-client token bucket. Tokens refill
// continuously at perMinute and never exceed burst.
type Limiter struct {
	burst     float64
	perMinute float64

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter. A burst of zero defaults to perMinute.
func NewLimiter(perMinute, burst int) *Limiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &Limiter{
		burst:     float64(burst),
		perMinute: float64(perMinute),
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

// Middleware limits requests per client IP. A zero rate disables limiting.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.perMinute <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, wait := l.take(ip)
		c.Header("X-RateLimit-Limit", strconv.Itoa(int(l.perMinute)))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}
		c.Next()
	}
}

// take spends one token for key. When none is left it reports how long
// until the next one.
func (l *Limiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneAfter {
			l.pruneLocked(now)
		}
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	} else {
		b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.last).Minutes()*l.perMinute)
		b.last = now
	}

	if b.tokens < 1 {
		missing := 1 - b.tokens
		return false, time.Duration(missing / l.perMinute * float64(time.Minute))
	}
	b.tokens--
	return true, 0
}

// pruneLocked drops buckets that would be full by now.
func (l *Limiter) pruneLocked(now time.Time) {
	for k, b := range l.buckets {
		if b.tokens+now.Sub(b.last).Minutes()*l.perMinute >= l.burst {
			delete(l.buckets, k)
		}
	}
}

// SecurityHeaders sets the response headers every page of the portal carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
