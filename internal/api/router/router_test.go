package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/ersim-ai-platform/internal/cases"
	"github.com/wolfman30/ersim-ai-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/ersim-ai-platform/internal/http/middleware"
	"github.com/wolfman30/ersim-ai-platform/pkg/logging"
)

type recordingService struct {
	lastUser string
}

func (s *recordingService) Respond(ctx context.Context, req conversation.RespondRequest) (*conversation.TurnResponse, error) {
	s.lastUser = req.UserID
	return &conversation.TurnResponse{SessionID: "s1", CaseID: req.CaseID, SpeechOutput: "Vitals are stable."}, nil
}

func (s *recordingService) Transcript(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	s.lastUser = userID
	return []conversation.Turn{}, nil
}

func (s *recordingService) Primer(ctx context.Context, caseID string) (cases.Primer, error) {
	return cases.FallbackPrimer(caseID), nil
}

func newTestRouter(t *testing.T, cfg Config) (http.Handler, *recordingService) {
	t.Helper()
	svc := &recordingService{}
	cfg.Logger = logging.Default()
	cfg.ConversationHandler = conversation.NewHandler(svc, cfg.Logger)
	return New(&cfg), svc
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, Config{AuthJWTSecret: "secret"})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterRespondUsesLearnerIdentity(t *testing.T) {
	router, svc := newTestRouter(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/sim/respond", strings.NewReader(`{"case_id":"case-7","utterance":"Get an ecg"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "learner-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if svc.lastUser != "learner-1" {
		t.Fatalf("expected learner-1, got %q", svc.lastUser)
	}
}

func TestRouterSimRoutesRequireTokenWhenSecretSet(t *testing.T) {
	router, _ := newTestRouter(t, Config{AuthJWTSecret: "secret"})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/sim/respond"},
		{http.MethodGet, "/api/sim/sessions/s1/turns"},
		{http.MethodGet, "/api/sim/cases/case-7/primer"},
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestRouterUnmountedHandlersReturnNotFound(t *testing.T) {
	router, _ := newTestRouter(t, Config{})

	for _, path := range []string{"/api/sim/resources/unlock", "/api/voice/transcribe", "/metrics"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 404/405 when handler is nil, got %d", path, rr.Code)
		}
	}
}

func TestRouterRateLimitsLearner(t *testing.T) {
	router, _ := newTestRouter(t, Config{RateLimiter: httpmiddleware.NewRateLimiter(0.001, 1)})

	send := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/sim/cases/case-7/primer", nil)
		req.Header.Set("X-User-Id", "learner-1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", code)
	}
}
