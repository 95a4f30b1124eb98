package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		preflight   bool
		wantOrigin  string
		wantStatus  int
		wantHandled bool
	}{
		{name: "listed origin", allowed: []string{"https://sim.example.com/"}, origin: "https://sim.example.com", method: http.MethodPost, wantOrigin: "https://sim.example.com", wantStatus: http.StatusOK, wantHandled: true},
		{name: "unknown origin", allowed: []string{"https://sim.example.com"}, origin: "https://evil.example.com", method: http.MethodPost, wantStatus: http.StatusOK, wantHandled: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://localhost:3000", method: http.MethodGet, wantOrigin: "http://localhost:3000", wantStatus: http.StatusOK, wantHandled: true},
		{name: "preflight short-circuits", allowed: []string{"*"}, origin: "http://localhost:3000", method: http.MethodOptions, preflight: true, wantOrigin: "http://localhost:3000", wantStatus: http.StatusNoContent},
		{name: "no origin", allowed: []string{"*"}, method: http.MethodGet, wantStatus: http.StatusOK, wantHandled: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handled = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tc.method, "/api/sim/respond", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tc.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if handled != tc.wantHandled {
				t.Fatalf("expected handled=%v, got %v", tc.wantHandled, handled)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("expected allow origin %q, got %q", tc.wantOrigin, got)
			}
		})
	}
}
