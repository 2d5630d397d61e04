package server

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleSweep = 5 * time.Minute

// RateLimit bounds requests per client key.
type RateLimit struct {
	PerMinute int
	Burst     int
}

// keyedLimiter keeps one token bucket per client key.
type keyedLimiter struct {
	limiters    sync.Map
	limit       rate.Limit
	burst       int
	mu          sync.Mutex
	lastCleanup time.Time
}

func newKeyedLimiter(cfg RateLimit) *keyedLimiter {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}
	return &keyedLimiter{
		limit:       rate.Limit(float64(perMinute) / time.Minute.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (l *keyedLimiter) limiterFor(key string) *rate.Limiter {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter)
	}
	actual, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.limit, l.burst))
	l.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops buckets that have refilled completely, which means the client went idle.
func (l *keyedLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCleanup) < limiterIdleSweep {
		return
	}
	l.lastCleanup = time.Now()
	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}

// middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *keyedLimiter) middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			c.Next()
			return
		}
		limiter := l.limiterFor(key)
		if limiter.Allow() {
			c.Next()
			return
		}

		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()
		retryAfter := int(math.Max(math.Ceil(delay.Seconds()), 1))

		logger.Warn("rate limit exceeded",
			zap.String("client_ip", key),
			zap.String("path", c.FullPath()))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		respondError(c, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
	}
}
