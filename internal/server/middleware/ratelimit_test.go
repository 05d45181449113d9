package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	allowed bool
	err     error
	lastCtx context.Context
	lastKey string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	f.lastCtx = ctx
	f.lastKey = key
	return f.allowed, f.err
}

func (f *fakeLimiter) Wait(ctx context.Context, key string) error { return nil }

func TestRateLimitRejectsOverLimit(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	h := RateLimit(limiter, 5, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/mint", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimitPropagatesRequestContext(t *testing.T) {
	type ctxKey struct{}

	limiter := &fakeLimiter{allowed: true}
	h := RateLimit(limiter, 5, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/mints/abc", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "marker"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if limiter.lastCtx == nil || limiter.lastCtx.Value(ctxKey{}) != "marker" {
		t.Error("limiter did not receive the request context")
	}
}

func TestRateLimitKeyUsesForwardedFor(t *testing.T) {
	limiter := &fakeLimiter{allowed: true}
	h := RateLimit(limiter, 5, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.lastKey != "ratelimit:api:203.0.113.7" {
		t.Errorf("key = %q, want forwarded client IP", limiter.lastKey)
	}
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: context.DeadlineExceeded}
	reached := false
	h := RateLimit(limiter, 5, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/mints", nil))

	if !reached {
		t.Error("expected handler to run when the limiter errors")
	}
}
