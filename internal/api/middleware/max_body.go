package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/autoreply/internal/api"
)

// MaxBodyBytes caps the body of POST and PUT requests. A declared
// Content-Length over the limit is rejected before the handler runs; a
// chunked body is cut off by http.MaxBytesReader and reported by
// api.DecodeJSON.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || !hasBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body too large (limit %d bytes)", limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}
