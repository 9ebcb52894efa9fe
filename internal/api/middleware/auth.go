package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/cloo-solutions/autoreply/internal/api"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// ErrInvalidAPIKey is returned by validators for an unknown token.
var ErrInvalidAPIKey = errors.New("invalid api key")

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// StaticKey validates bearer tokens against a single configured key.
type StaticKey string

func (k StaticKey) ValidateAPIKey(ctx context.Context, token string) (string, error) {
	if k == "" || subtle.ConstantTimeCompare([]byte(k), []byte(token)) != 1 {
		return "", ErrInvalidAPIKey
	}
	return "api-key", nil
}

func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			principal, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetPrincipal(ctx context.Context) string {
	principal, _ := ctx.Value(PrincipalKey).(string)
	return principal
}
