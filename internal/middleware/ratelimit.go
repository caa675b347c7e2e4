package middleware

import (
	"net/http"
	"sync"
	"time"

	"solstore/internal/model"

	"github.com/gin-gonic/gin"
)

// IPRateLimiter keeps a token bucket per client IP.
type IPRateLimiter struct {
	ips    map[string]*tokenBucket
	mu     sync.Mutex
	config model.RateLimitConfig
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	rate       float64
	capacity   float64
	mu         sync.Mutex
}

func NewIPRateLimiter(config model.RateLimitConfig) *IPRateLimiter {
	return &IPRateLimiter{
		ips:    make(map[string]*tokenBucket),
		config: config,
	}
}

func (tb *tokenBucket) tryConsume(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = tb.tokens + elapsed*tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

func (i *IPRateLimiter) bucket(ip string) *tokenBucket {
	i.mu.Lock()
	defer i.mu.Unlock()

	b, exists := i.ips[ip]
	if !exists {
		b = &tokenBucket{
			tokens:     float64(i.config.BurstSize),
			lastRefill: time.Now(),
			rate:       float64(i.config.RequestsPerSecond),
			capacity:   float64(i.config.BurstSize),
		}
		i.ips[ip] = b
	}
	return b
}

// RateLimit rejects requests exceeding the per-IP budget with 429.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !i.bucket(c.ClientIP()).tryConsume(time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.Response{
				Success: false,
				Error:   "too many requests",
			})
			return
		}
		c.Next()
	}
}
