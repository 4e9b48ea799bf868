package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"pack-design-backend/internal/middleware"
)

func TestAllowWithinWindow(t *testing.T) {
	limiter := middleware.NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("chat", "10.0.0.1"), "request %d should pass", i+1)
	}
	assert.False(t, limiter.Allow("chat", "10.0.0.1"))
}

func TestScopesAndClientsAreIndependent(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)

	assert.True(t, limiter.Allow("chat", "10.0.0.1"))
	assert.False(t, limiter.Allow("chat", "10.0.0.1"))
	assert.True(t, limiter.Allow("image-generate", "10.0.0.1"))
	assert.True(t, limiter.Allow("chat", "10.0.0.2"))
}

func TestWindowResets(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, 20*time.Millisecond)

	assert.True(t, limiter.Allow("chat", "10.0.0.1"))
	assert.False(t, limiter.Allow("chat", "10.0.0.1"))

	time.Sleep(25 * time.Millisecond)
	assert.True(t, limiter.Allow("chat", "10.0.0.1"))
}

func TestMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := middleware.NewRateLimiter(1, time.Minute)

	router := gin.New()
	router.GET("/ping", limiter.Middleware("ping"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "Rate limit exceeded")
}
