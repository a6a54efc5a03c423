package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestClientLimiters_burstThenDeny(t *testing.T) {
	l := newClientLimiters(1, 2)
	now := time.Now()

	if !l.allow("10.0.0.1", now) || !l.allow("10.0.0.1", now) {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.allow("10.0.0.1", now) {
		t.Error("third request in the same instant should be denied")
	}
	if !l.allow("10.0.0.2", now) {
		t.Error("other clients have their own bucket")
	}
	if !l.allow("10.0.0.1", now.Add(time.Second)) {
		t.Error("bucket should refill after a second")
	}
}

func TestClientLimiters_sweep(t *testing.T) {
	l := newClientLimiters(1, 1)
	now := time.Now()
	l.allow("old", now.Add(-time.Hour))
	l.allow("fresh", now)

	if remaining := l.sweep(now.Add(-limiterIdleAfter)); remaining != 1 {
		t.Errorf("expected 1 bucket after sweep, got %d", remaining)
	}
}

func TestRateLimiter_429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.Use(RateLimiter(ctx, 1, 1))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes: %v", codes)
	}
}
