package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// statusRecorder remembers the status code and body size written by the
// wrapped handler. A handler that never calls WriteHeader reports 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// quietPaths are polled by load balancers and scrapers; they are neither
// traced nor reported.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
