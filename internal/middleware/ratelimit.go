package middleware

import (
	"net/http"
	"sync"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/metrics"

	"github.com/gin-gonic/gin"
)

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

// rateLimiter is a per-client token bucket keyed by remote IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    float64
	burst   float64
	now     func() time.Time
}

func newRateLimiter(perMinute int, burst int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &rateLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    float64(perMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, lastSeen: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.lastSeen).Seconds()
	b.tokens += elapsed * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle longer than ttl to bound memory.
func (rl *rateLimiter) sweep(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-ttl)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// RateLimitMiddleware throttles by client IP using a token bucket. Dropped
// requests are counted in the metrics package with a per-route reason.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	enabled := true
	perMinute, burst := 120, 30
	if cfg != nil {
		enabled = cfg.Security.RateLimiting.Enabled
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			perMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			burst = cfg.Security.RateLimiting.Burst
		}
	}
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}

	rl := newRateLimiter(perMinute, burst)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rl.sweep(10 * time.Minute)
		}
	}()

	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			metrics.IncRateLimitDrop(c.FullPath())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded, retry later",
			})
			return
		}
		c.Next()
	}
}
