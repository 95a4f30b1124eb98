package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/ersim-ai-platform/internal/identity"
)

func signedLearnerToken(t *testing.T, secret, subject string, method jwt.SigningMethod) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func runAuth(t *testing.T, secret string, setup func(r *http.Request)) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/sim/respond", nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	var seen string
	LearnerAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity.UserID(r.Context())
	})).ServeHTTP(rec, req)
	return rec.Code, seen
}

func TestLearnerAuthValidToken(t *testing.T) {
	code, user := runAuth(t, "secret", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+signedLearnerToken(t, "secret", "learner-42", jwt.SigningMethodHS256))
	})
	if code != http.StatusOK || user != "learner-42" {
		t.Fatalf("expected learner-42 with 200, got %q with %d", user, code)
	}
}

func TestLearnerAuthRejects(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{name: "missing header"},
		{name: "wrong secret", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedLearnerToken(t, "other", "learner-42", jwt.SigningMethodHS256))
		}},
		{name: "wrong algorithm", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedLearnerToken(t, "secret", "learner-42", jwt.SigningMethodHS512))
		}},
		{name: "missing subject", setup: func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedLearnerToken(t, "secret", "", jwt.SigningMethodHS256))
		}},
		{name: "dev header ignored when secret set", setup: func(r *http.Request) {
			r.Header.Set(devUserHeader, "learner-42")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if code, _ := runAuth(t, "secret", tc.setup); code != http.StatusUnauthorized {
				t.Fatalf("expected %d, got %d", http.StatusUnauthorized, code)
			}
		})
	}
}

func TestLearnerAuthDevelopmentIdentity(t *testing.T) {
	if _, user := runAuth(t, "", nil); user != identity.Anonymous {
		t.Fatalf("expected anonymous, got %q", user)
	}
	if _, user := runAuth(t, "", func(r *http.Request) { r.Header.Set(devUserHeader, " learner-9 ") }); user != "learner-9" {
		t.Fatalf("expected learner-9, got %q", user)
	}
}
