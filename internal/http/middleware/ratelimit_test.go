package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/ersim-ai-platform/internal/identity"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if rl.Allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("expected separate bucket per key")
	}
	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatalf("expected refill after 1.5s")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(time.Hour)
	rl.Allow("new")

	if removed := rl.Sweep(now.Add(-limiterIdleCutoff)); removed != 1 {
		t.Fatalf("expected 1 bucket removed, got %d", removed)
	}
}

func TestRateLimiterMiddlewareKeys(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(user, ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/sim/respond", nil)
		req.RemoteAddr = ip + ":5555"
		if user != "" {
			req = req.WithContext(identity.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("learner-1", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected first learner request to pass, got %d", code)
	}
	if code := send("learner-1", "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Fatalf("expected learner to be limited across addresses, got %d", code)
	}
	if code := send("learner-2", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected other learner to pass, got %d", code)
	}
	if code := send("", "10.0.0.3"); code != http.StatusOK {
		t.Fatalf("expected anonymous request to pass, got %d", code)
	}
	if code := send(identity.Anonymous, "10.0.0.3"); code != http.StatusTooManyRequests {
		t.Fatalf("expected anonymous caller to be limited by address, got %d", code)
	}
}
