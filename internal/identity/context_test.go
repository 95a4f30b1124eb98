package identity

import (
	"context"
	"testing"
)

func TestWithUserIDAndUserIDFromContext(t *testing.T) {
	ctx := WithUserID(context.Background(), "learner-7")

	got, ok := UserIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected user id to be present")
	}
	if got != "learner-7" {
		t.Fatalf("expected learner-7, got %s", got)
	}
	if UserID(ctx) != "learner-7" {
		t.Fatalf("expected UserID to return learner-7")
	}
}

func TestUserIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatalf("expected missing user id to return false")
	}
	if UserID(ctx) != Anonymous {
		t.Fatalf("expected anonymous fallback, got %s", UserID(ctx))
	}

	ctx = context.WithValue(ctx, userKey, 42)
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatalf("expected non-string user id to return false")
	}

	ctx = WithUserID(context.Background(), "")
	if _, ok := UserIDFromContext(ctx); ok {
		t.Fatalf("expected empty user id to return false")
	}
}
