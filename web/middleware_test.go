package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/status", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func getFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/status", nil)
	req.RemoteAddr = ip + ":40000"
	router.ServeHTTP(w, req)
	return w
}

func visitorCount(rl *RateLimiter) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func TestGetLimiterTouchesVisitor(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	first := time.UnixMilli(1700000000000)
	later := first.Add(time.Minute)

	l1 := rl.getLimiter("10.0.0.1", first)
	l2 := rl.getLimiter("10.0.0.1", later)
	if l1 != l2 {
		t.Error("Same IP should keep its limiter")
	}
	rl.mu.Lock()
	seen := rl.visitors["10.0.0.1"].lastSeen
	rl.mu.Unlock()
	if !seen.Equal(later) {
		t.Errorf("Expected lastSeen %v, got %v", later, seen)
	}
	if rl.getLimiter("10.0.0.2", first) == l1 {
		t.Error("Different IPs should not share a limiter")
	}
}

func TestForgetDropsOnlyIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	now := time.UnixMilli(1700000000000)
	rl.getLimiter("10.0.0.1", now.Add(-time.Hour))
	rl.getLimiter("10.0.0.2", now.Add(-limiterIdleTimeout))
	rl.getLimiter("10.0.0.3", now)

	if removed := rl.forget(now.Add(-limiterIdleTimeout)); removed != 1 {
		t.Errorf("Expected 1 idle visitor removed, got %d", removed)
	}
	if n := visitorCount(rl); n != 2 {
		t.Errorf("Expected 2 visitors kept, got %d", n)
	}
	// a visitor touched again before the cutoff survives the next sweep
	rl.getLimiter("10.0.0.2", now)
	if removed := rl.forget(now.Add(-time.Second)); removed != 0 {
		t.Errorf("Expected nothing removed, got %d", removed)
	}
}

func TestForgottenVisitorGetsFreshBurst(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(0.001), 1)
	router := limitedRouter(rl)

	if w := getFrom(router, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", w.Code)
	}
	w := getFrom(router, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request should be limited, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Rate limit exceeded") {
		t.Errorf("Expected rate limit error, got: %s", w.Body.String())
	}
	if w := getFrom(router, "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("Another IP has its own bucket, got %d", w.Code)
	}

	rl.forget(time.Now().Add(time.Second))
	if n := visitorCount(rl); n != 0 {
		t.Fatalf("Expected every visitor forgotten, got %d", n)
	}
	if w := getFrom(router, "10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("Forgotten IP should start with a full bucket, got %d", w.Code)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(10), 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMaxBytesMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MaxBytesMiddleware(64))
	router.POST("/inbox/:origin", func(c *gin.Context) {
		body, err := c.GetRawData()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, "%d", len(body))
	})

	tests := []struct {
		name           string
		body           io.Reader
		contentLength  int64
		expectedStatus int
	}{
		{"declared within limit", strings.NewReader(strings.Repeat("x", 64)), 64, http.StatusOK},
		{"declared over limit", strings.NewReader(strings.Repeat("x", 65)), 65, http.StatusRequestEntityTooLarge},
		// unknown length is cut while reading
		{"streamed over limit", io.MultiReader(strings.NewReader(strings.Repeat("x", 100))), -1, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/inbox/example", tt.body)
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}
