package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if rl.Allow("a") {
		t.Fatalf("third request within the same instant should be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("keys must not share a bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("token should refill after one second")
	}
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(2 * visitorIdleTTL)
	rl.Allow("new")

	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle visitor not swept")
	}
}

func TestRateLimiterMiddlewareUsesUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Limit(0.001), 1)

	router := gin.New()
	router.GET("/check", func(c *gin.Context) {
		c.Set(userIDKey, uint(c.GetHeader("X-User")[0]-'0'))
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/check", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("1"); code != http.StatusNoContent {
		t.Fatalf("first request = %d", code)
	}
	if code := do("1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d", code)
	}
	if code := do("2"); code != http.StatusNoContent {
		t.Fatalf("other user = %d", code)
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationIDMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetCorrelationID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Body.String() != "abc" || rec.Header().Get("X-Correlation-ID") != "abc" {
		t.Fatalf("body = %q header = %q", rec.Body.String(), rec.Header().Get("X-Correlation-ID"))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatalf("correlation id not generated")
	}
}

func TestPasswordGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		c.Set(mustChangePasswordKey, c.Query("must") == "1")
		c.Next()
	}, RequirePasswordChangeCompletedMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?must=1", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}
