package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pixelgrove/service/internal/response"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

// CallerIDKey is the context key for the authenticated caller's ID.
// Identity is established by an external auth service; this middleware
// only validates the token it issued. Application-level authorization
// (who may ingest or delete which asset) is the caller's responsibility.
const CallerIDKey contextKey = "callerID"

// RequireAuth returns middleware that validates a Bearer JWT and injects
// the caller ID into the request context.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				response.Unauthorized(w, "invalid or expired token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				response.Unauthorized(w, "invalid token claims")
				return
			}

			callerID, _ := claims["sub"].(string)
			if callerID == "" {
				response.Unauthorized(w, "token missing subject")
				return
			}

			ctx := context.WithValue(r.Context(), CallerIDKey, callerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
