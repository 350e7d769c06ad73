package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := newRateLimiter(2, 50*time.Millisecond)

	if !rl.allow("k") || !rl.allow("k") {
		t.Fatal("first two calls must pass")
	}
	if rl.allow("k") {
		t.Fatal("third call within the window must be rejected")
	}
	// Другой ключ имеет собственный бюджет.
	if !rl.allow("other") {
		t.Fatal("independent key must pass")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.allow("k") {
		t.Fatal("call after the window must pass again")
	}
}

func TestRateLimitIPRejectsWith429(t *testing.T) {
	calls := 0
	h := RateLimitIP(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestRateLimitUserIgnoresAnonymous(t *testing.T) {
	h := RateLimitUser(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Без user_id в контексте лимитер не срабатывает, сколько бы ни звали.
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sidebar", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("anonymous request %d = %d", i, rec.Code)
		}
	}

	ctx := context.WithValue(context.Background(), UserIDKey, "u1")
	req := httptest.NewRequest(http.MethodGet, "/api/sidebar", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first user request: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second user request = %d, want 429", rec.Code)
	}
}
