package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"loans": {RatePerSecond: 1, Burst: 1},
	}, nil)

	handler := limiter.Middleware("loans")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/fixed/requests/count", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRateLimiterSeparatesRouteGroups(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"loans":  {RatePerSecond: 1, Burst: 1},
		"assets": {RatePerSecond: 1, Burst: 1},
	}, nil)
	loansHandler := limiter.Middleware("loans")(okHandler())
	assetsHandler := limiter.Middleware("assets")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/fixed/requests/1", nil)
	res := httptest.NewRecorder()
	loansHandler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected loans request to succeed, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	assetsHandler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/tokens/x/balances/y", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected assets request to use its own bucket, got %d", res.Code)
	}
}

func TestRateLimiterKeysByCaller(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"loans": {RatePerSecond: 1, Burst: 1}}, nil)
	handler := limiter.Middleware("loans")(okHandler())

	for i, caller := range [][20]byte{{1}, {2}} {
		req := httptest.NewRequest(http.MethodPost, "/v1/fixed/requests", nil)
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyCaller, caller))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != http.StatusOK {
			t.Fatalf("caller %d: expected success, got %d", i, res.Code)
		}
	}
}

func TestRateLimiterUnknownGroupPassesThrough(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("loans")(okHandler())
	for i := 0; i < 3; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d limited without a configured group", i)
		}
	}
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"loans": {RatePerSecond: 1, Burst: 1}}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	limiter.obtainLimiter("a", RateLimit{})
	now = now.Add(2 * visitorTTL)
	limiter.obtainLimiter("b", RateLimit{})
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("expected idle visitor to be swept")
	}
	if _, ok := limiter.visitors["b"]; !ok {
		t.Fatalf("expected fresh visitor to be tracked")
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.9" {
		t.Fatalf("unexpected client id %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.4")
	if got := clientID(req); got != "198.51.100.4" {
		t.Fatalf("unexpected client id %q", got)
	}
}
