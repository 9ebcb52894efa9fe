package middleware

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// SentryMiddleware runs each request inside a Sentry transaction named after
// the matched route, tags it with the request id and recovers panics into
// Sentry before re-panicking. Probe routes are passed through untouched.
// Without an initialised client the transaction is a no-op.
func SentryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub().Clone()
		}

		options := []sentry.SpanOption{
			sentry.WithOpName("http.server"),
			sentry.WithTransactionSource(sentry.SourceURL),
		}
		if trace := r.Header.Get("sentry-trace"); trace != "" {
			options = append(options, sentry.ContinueFromHeaders(trace, r.Header.Get("baggage")))
		}

		transaction := sentry.StartTransaction(r.Context(), r.Method+" "+r.URL.Path, options...)
		defer transaction.Finish()

		r = r.WithContext(sentry.SetHubOnContext(transaction.Context(), hub))

		scope := hub.Scope()
		scope.SetRequest(r)
		if requestID := GetRequestID(r.Context()); requestID != "" {
			scope.SetTag("request_id", requestID)
			transaction.SetTag("request_id", requestID)
		}

		defer func() {
			if err := recover(); err != nil {
				transaction.Status = sentry.SpanStatusInternalError
				hub.RecoverWithContext(r.Context(), err)
				panic(err)
			}
		}()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.Status()
		transaction.Status = spanStatus(status)
		transaction.SetData("http.response.status_code", status)
		if route := routePattern(r); route != "" {
			transaction.Name = r.Method + " " + route
			scope.SetTag("route", route)
		}

		// Handlers capture the underlying error; this records the failed
		// request itself so 5xx responses without an error are still visible.
		if status >= http.StatusInternalServerError {
			hub.CaptureMessage(fmt.Sprintf("%s returned %d", transaction.Name, status))
		}
	})
}

var spanStatuses = map[int]sentry.SpanStatus{
	http.StatusBadRequest:            sentry.SpanStatusInvalidArgument,
	http.StatusUnauthorized:          sentry.SpanStatusUnauthenticated,
	http.StatusForbidden:             sentry.SpanStatusPermissionDenied,
	http.StatusNotFound:              sentry.SpanStatusNotFound,
	http.StatusConflict:              sentry.SpanStatusAlreadyExists,
	http.StatusRequestEntityTooLarge: sentry.SpanStatusFailedPrecondition,
	http.StatusTooManyRequests:       sentry.SpanStatusResourceExhausted,
	http.StatusNotImplemented:        sentry.SpanStatusUnimplemented,
	http.StatusServiceUnavailable:    sentry.SpanStatusUnavailable,
	http.StatusGatewayTimeout:        sentry.SpanStatusDeadlineExceeded,
}

func spanStatus(status int) sentry.SpanStatus {
	if s, ok := spanStatuses[status]; ok {
		return s
	}
	switch {
	case status < 400:
		return sentry.SpanStatusOK
	case status < 500:
		return sentry.SpanStatusInvalidArgument
	default:
		return sentry.SpanStatusInternalError
	}
}
