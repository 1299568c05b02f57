package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimitPollingHigherThanDefault(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	groupFor := func(c *gin.Context) string {
		if c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/analyses/:id" {
			return "POLLING"
		}
		return "DEFAULT"
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "guest:test-guest")
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor:     groupFor,
		Limiter:      limiter,
		Rules: map[string]RateLimitRule{
			"DEFAULT": {Rate: 1, Burst: 2},
			"POLLING": {Rate: 5, Burst: 10},
		},
	}))

	r.GET("/api/v1/analyses/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/api/v1/analysis/create", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/analysis-1", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("polling request %d expected 200, got %d", i+1, resp.Code)
		}
	}

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/analysis/create", nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("default request %d expected 200, got %d", i+1, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/analysis/create", nil))
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("default request 3 expected 429, got %d", resp.Code)
	}
}

func TestRateLimit429IncludesRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "guest:test-guest")
		c.Next()
	})
	r.Use(RateLimit(RateLimitConfig{
		Limiter: limiter,
		Rules: map[string]RateLimitRule{
			"DEFAULT": {Rate: 1, Burst: 1},
		},
	}))
	r.GET("/api/v1/limited", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	resp1 := httptest.NewRecorder()
	r.ServeHTTP(resp1, httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil))
	if resp1.Code != http.StatusOK {
		t.Fatalf("expected first request 200, got %d", resp1.Code)
	}

	resp2 := httptest.NewRecorder()
	r.ServeHTTP(resp2, httptest.NewRequest(http.MethodGet, "/api/v1/limited", nil))
	if resp2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp2.Code)
	}
	if resp2.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", resp2.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "rate_limited" {
		t.Fatalf("expected code rate_limited, got %q", payload.Error.Code)
	}
	if _, ok := payload.Error.Details["retryAfterMs"]; !ok {
		t.Fatalf("expected retryAfterMs in details")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 2, Burst: 1}

	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("expected first call allowed")
	}
	if ok, wait := limiter.Allow("k", rule); ok || wait <= 0 {
		t.Fatalf("expected denial with positive wait, got ok=%v wait=%s", ok, wait)
	}
	now = now.Add(600 * time.Millisecond)
	if ok, _ := limiter.Allow("k", rule); !ok {
		t.Fatalf("expected refill after 600ms")
	}
	if ok, _ := limiter.Allow("other", rule); !ok {
		t.Fatalf("expected independent bucket per key")
	}
}
