package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"linkvault/internal/pkg/response"
)

const (
	limiterCacheSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// IPLimiter hands out one token bucket per client IP. Every request renews
// its bucket's TTL, so only buckets idle for the whole TTL are evicted.
type IPLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func NewIPLimiter(rps float64, burst int) *IPLimiter {
	return newIPLimiter(rps, burst, limiterIdleTTL)
}

func newIPLimiter(rps float64, burst int, idleTTL time.Duration) *IPLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IPLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, idleTTL),
	}
}

func (l *IPLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.buckets.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
	}
	l.buckets.Add(key, lim)
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit rejects requests over the per-IP budget with 429.
func RateLimit(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			response.Abort(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many attempts, slow down")
			return
		}
		c.Next()
	}
}
