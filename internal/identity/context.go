package identity

import "context"

type ctxKey string

const userKey ctxKey = "ersim.user_id"

// Anonymous is the learner id used when no identity was supplied.
const Anonymous = "anonymous"

// WithUserID stores the learner id in context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext extracts the learner id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(userKey)
	if val == nil {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// UserID returns the learner id or Anonymous.
func UserID(ctx context.Context) string {
	if id, ok := UserIDFromContext(ctx); ok {
		return id
	}
	return Anonymous
}
