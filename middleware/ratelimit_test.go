package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"sociohiro-backend/internal/config"
)

// unreachableRedis points at a closed port so every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{RateLimitReqs: 1, RateLimitWindow: 60}

	router := gin.New()
	router.Use(RateLimitMiddleware(unreachableRedis(t), cfg))
	router.GET("/api/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestRateLimitSkipsWebhook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{RateLimitReqs: 0, RateLimitWindow: 60}

	router := gin.New()
	router.Use(RateLimitMiddleware(unreachableRedis(t), cfg))
	router.POST("/webhook", func(c *gin.Context) { c.String(http.StatusOK, "EVENT_RECEIVED") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("webhook must bypass the limiter, got %d %v", w.Code, w.Header())
	}
}
