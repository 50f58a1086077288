package topic_http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// keyedLimiter holds a rate limiter and the last time it was seen.
type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PollRateLimiter bounds status polling per task and caller so a hot
// client loop cannot hammer the status endpoint. Limits apply per
// (task, client IP) key.
type PollRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	rate     rate.Limit
	burst    int
}

// NewPollRateLimiter creates a limiter allowing r requests per second with
// the given burst per key.
func NewPollRateLimiter(r rate.Limit, burst int) *PollRateLimiter {
	rl := &PollRateLimiter{
		limiters: make(map[string]*keyedLimiter),
		rate:     r,
		burst:    burst,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *PollRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[key]; exists {
		l.lastSeen = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &keyedLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (rl *PollRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for key, l := range rl.limiters {
			if l.lastSeen.Before(cutoff) {
				delete(rl.limiters, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the limit on routes carrying a task_id path param.
func (rl *PollRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Param("task_id") + "|" + c.RealIP()
			if !rl.getLimiter(key).Allow() {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "poll rate exceeded"})
			}
			return next(c)
		}
	}
}
