package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-auth/internal/repository/memory"
	"github.com/arklim/social-platform-auth/internal/usecase"
)

func newTestRouter(limiter *usecase.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/login", RateLimit(limiter, "login", ClientIPIdentifier()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func doRequest(t *testing.T, router *gin.Engine, ip string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":51234"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	store := memory.NewRateLimitStore()
	limiter, err := usecase.NewRateLimiter(store, 3, time.Minute, nil)
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}

	router := newTestRouter(limiter)

	for i := 0; i < 3; i++ {
		rr := doRequest(t, router, "203.0.113.7")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

func TestRateLimitRejectsOverBudgetWithHeaders(t *testing.T) {
	store := memory.NewRateLimitStore()
	limiter, err := usecase.NewRateLimiter(store, 2, time.Minute, nil)
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}

	router := newTestRouter(limiter)

	doRequest(t, router, "203.0.113.7")
	doRequest(t, router, "203.0.113.7")
	rr := doRequest(t, router, "203.0.113.7")

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining header 0, got %q", got)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on rejection")
	}
	if rr.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("expected limit header 2, got %q", rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitScopesByClientIP(t *testing.T) {
	store := memory.NewRateLimitStore()
	limiter, err := usecase.NewRateLimiter(store, 1, time.Minute, nil)
	if err != nil {
		t.Fatalf("new rate limiter: %v", err)
	}

	router := newTestRouter(limiter)

	if rr := doRequest(t, router, "203.0.113.7"); rr.Code != http.StatusOK {
		t.Fatalf("first client first request: expected 200, got %d", rr.Code)
	}
	if rr := doRequest(t, router, "203.0.113.7"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("first client second request: expected 429, got %d", rr.Code)
	}
	if rr := doRequest(t, router, "198.51.100.4"); rr.Code != http.StatusOK {
		t.Fatalf("second client: expected 200, got %d", rr.Code)
	}
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	router := newTestRouter(nil)

	for i := 0; i < 10; i++ {
		if rr := doRequest(t, router, "203.0.113.7"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}
