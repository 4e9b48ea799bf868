// Package middleware holds the gin middleware shared across routes.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"pack-design-backend/internal/models"
)

// RateLimiter is a fixed-window counter keyed by (scope, client IP). Excess
// requests inside the window are rejected with 429.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	windows map[string]*windowCounter
	now     func() time.Time
}

type windowCounter struct {
	start time.Time
	count int
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		windows:     make(map[string]*windowCounter),
		now:         time.Now,
	}
}

// Allow records one request for the key and reports whether it fits in the
// current window.
func (r *RateLimiter) Allow(scope, client string) bool {
	key := scope + ":" + client
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.window {
		r.windows[key] = &windowCounter{start: now, count: 1}
		return true
	}
	if w.count >= r.maxRequests {
		return false
	}
	w.count++
	return true
}

// Middleware returns a gin handler enforcing the limit for one scope.
func (r *RateLimiter) Middleware(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(scope, c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
