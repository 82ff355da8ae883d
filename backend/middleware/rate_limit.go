package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/AnTengye/contractdash/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client IP
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByTenant counts authenticated requests per tenant and anonymous ones per IP
func ByTenant(c *gin.Context) string {
	if tenant := GetTenant(c); tenant != "" {
		return "tenant:" + tenant
	}
	return c.ClientIP()
}

// RateLimiter is a fixed-window request counter
type RateLimiter struct {
	mu        sync.Mutex
	tokens    map[string]int
	lastReset time.Time
	rate      int           // requests per window
	window    time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:    make(map[string]int),
		lastReset: time.Now(),
		rate:      rate,
		window:    window,
	}
}

// Allow counts one request for key and reports whether it is within the limit
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastReset) > l.window {
		l.tokens = make(map[string]int)
		l.lastReset = time.Now()
	}

	count := l.tokens[key]
	if count >= l.rate {
		return false
	}
	l.tokens[key] = count + 1
	return true
}

// RateLimit limits requests per client IP
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	return RateLimitBy(rate, window, ByClientIP)
}

// RateLimitBy limits requests per key
func RateLimitBy(rate int, window time.Duration, key KeyFunc) gin.HandlerFunc {
	limiter := NewRateLimiter(rate, window)

	return func(c *gin.Context) {
		k := key(c)
		if !limiter.Allow(k) {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"key", k,
				"path", c.Request.URL.Path,
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
