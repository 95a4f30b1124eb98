package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/ersim-ai-platform/internal/identity"
)

const devUserHeader = "X-User-Id"

// LearnerAuth resolves the learner id for every request. With a secret, an
// HS256 bearer token is required and its subject becomes the user id. Without
// one (local development) the X-User-Id header is trusted and defaults to
// anonymous.
func LearnerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				userID := strings.TrimSpace(r.Header.Get(devUserHeader))
				if userID == "" {
					userID = identity.Anonymous
				}
				next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), userID)))
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				http.Error(w, "token has no subject", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), claims.Subject)))
		})
	}
}
