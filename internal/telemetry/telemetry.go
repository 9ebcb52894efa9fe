// Package telemetry wires Sentry error reporting and tracing into the
// reply pipeline. Every helper is a no-op until Init succeeds.
package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serverName   = "autoreply"
	flushTimeout = 5 * time.Second
)

// Config holds the Sentry settings read from the environment.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

// unsampled lists transactions that are never traced.
var unsampled = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

// Init configures the global Sentry client and returns a flush func for
// shutdown. An empty DSN or a client error leaves reporting disabled.
func Init(cfg Config) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 || cfg.TracesSampleRate > 1 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       serverName,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		TracesSampler:    sampler(cfg.TracesSampleRate),
	})
	if err != nil {
		log.Printf("telemetry: sentry disabled: %v", err)
		return noop, nil
	}

	log.Printf("telemetry: sentry enabled (environment=%s, traces=%.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if unsampled[ctx.Span.Name] {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

func hubFor(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err on the request hub when there is one.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	hubFor(ctx).CaptureException(err)
}

// CaptureJobError reports a failed background job run tagged with the job
// name, so recurring inbox failures group together.
func CaptureJobError(ctx context.Context, job string, err error) {
	if err == nil {
		return
	}
	hub := hubFor(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", job)
		scope.SetFingerprint([]string{"job", job, "{{ default }}"})
		hub.CaptureException(err)
	})
}
