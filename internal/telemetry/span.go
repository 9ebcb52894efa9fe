package telemetry

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SpanAttributes are the tags attached to pipeline spans. Empty fields are
// skipped.
type SpanAttributes struct {
	PolicyID  string
	MessageID string
	Priority  string
	Operation string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	tags := map[string]string{
		"policy_id":  a.PolicyID,
		"message_id": a.MessageID,
		"priority":   a.Priority,
	}
	for k, v := range tags {
		if v != "" {
			span.SetTag(k, v)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a started Sentry span. A nil inner span makes every method a no-op.
type Span struct {
	inner *sentry.Span
}

// StartSpan opens a child of the span already in ctx, or a new transaction
// named after the operation when ctx carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

func (s *Span) End() {
	if s == nil || s.inner == nil {
		return
	}
	if s.inner.Status == sentry.SpanStatusUndefined {
		s.inner.Status = sentry.SpanStatusOK
	}
	s.inner.Finish()
}

// SetError marks the span failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s == nil || s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}
