package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, burst int) (*RateLimiter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	rl := NewRateLimiter(RateLimiterConfig{
		Rate:            1,
		Burst:           burst,
		CleanupInterval: time.Minute,
	}, newTestLogger(&buf))
	t.Cleanup(rl.Stop)
	return rl, &buf
}

func sessionRequest(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	return req.WithContext(ContextWithSessionID(req.Context(), id))
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 3)
	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, sessionRequest("s1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter_Returns429WhenExceeded(t *testing.T) {
	rl, buf := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest("s1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest("s1"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After = %q, want %q", got, "1")
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
	if !bytes.Contains(buf.Bytes(), []byte("session:s1")) {
		t.Errorf("log = %q, want client key", buf.String())
	}
}

func TestRateLimiter_SessionsAreIndependent(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), sessionRequest("s1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, sessionRequest("s2"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}
}

func TestRateLimiter_FallsBackToRemoteAddr(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 1)
	handler := rl.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	rl.mu.Lock()
	_, ok := rl.limiters["addr:203.0.113.9"]
	rl.mu.Unlock()
	if !ok {
		t.Error("limiter keyed by remote address not found")
	}
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl, _ := newTestRateLimiter(t, 1)
	rl.limiter("session:old")

	rl.mu.Lock()
	rl.limiters["session:old"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()
	if rl.LimiterCount() != 0 {
		t.Errorf("LimiterCount = %d, want 0", rl.LimiterCount())
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(60)
	if cfg.Rate != 1 {
		t.Errorf("Rate = %v, want 1", cfg.Rate)
	}
	if cfg.Burst != 60 {
		t.Errorf("Burst = %d, want 60", cfg.Burst)
	}
	if def := RateLimiterConfigPerMinute(0); def.Burst != 120 {
		t.Errorf("default Burst = %d, want 120", def.Burst)
	}
}
