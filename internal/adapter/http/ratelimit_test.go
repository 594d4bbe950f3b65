package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over-burst status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response has no Retry-After header")
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("10.0.0.1:1"); code != http.StatusOK {
		t.Fatalf("first ip status = %d", code)
	}
	if code := send("10.0.0.1:2"); code != http.StatusTooManyRequests {
		t.Errorf("same ip second request = %d, want 429", code)
	}
	if code := send("10.0.0.2:1"); code != http.StatusOK {
		t.Errorf("other ip blocked too, status = %d", code)
	}
	if rl.Len() != 2 {
		t.Errorf("tracked buckets = %d, want 2", rl.Len())
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(100, 1)

	if _, _, allowed := rl.allow("10.0.0.1"); !allowed {
		t.Fatal("first request must pass")
	}
	if _, _, allowed := rl.allow("10.0.0.1"); allowed {
		t.Fatal("second immediate request must be rejected")
	}

	time.Sleep(20 * time.Millisecond)
	if _, _, allowed := rl.allow("10.0.0.1"); !allowed {
		t.Error("request after refill window was rejected")
	}
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.cleanup(0)
	if rl.Len() != 0 {
		t.Errorf("buckets after cleanup = %d, want 0", rl.Len())
	}
}
