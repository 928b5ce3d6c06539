package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	allowed bool
	err     error
	scopes  []string
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	f.scopes = append(f.scopes, scope)
	return f.allowed, 1, f.err
}

func limitedHandler(limiter RateLimiter) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RateLimit(limiter, nil, "verify", 10, time.Minute)(next)
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = "203.0.113.9:51234"

	limitedHandler(limiter).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(limiter.scopes) != 1 || limiter.scopes[0] != "verify:203.0.113.9" {
		t.Fatalf("unexpected scopes %v", limiter.scopes)
	}
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = "203.0.113.9:51234"

	limitedHandler(&fakeLimiter{allowed: false}).ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)

	limitedHandler(&fakeLimiter{err: errors.New("redis down")}).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request to pass through, got %d", rec.Code)
	}
}

func TestRateLimitDisabledWithoutLimiter(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/verify", nil)

	limitedHandler(nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
