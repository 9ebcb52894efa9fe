package server

import (
	"net/http"

	"github.com/cloo-solutions/autoreply/internal/api/handlers"
	"github.com/cloo-solutions/autoreply/internal/api/middleware"
	"github.com/cloo-solutions/autoreply/internal/metrics"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes int64 = 5 * 1024 * 1024

// RouterConfig wires handlers into the router. A nil AuthValidator leaves
// every route open; a nil Metrics skips instrumentation and /metrics.
type RouterConfig struct {
	AuthValidator middleware.AuthValidator
	Metrics       *metrics.Metrics
	SystemHandler *handlers.SystemHandler
	EmailHandler  *handlers.EmailHandler
	PolicyHandler *handlers.PolicyHandler
	CacheHandler  *handlers.CacheHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(middleware.SentryMiddleware)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/", cfg.SystemHandler.Root)
	r.Get("/health", cfg.SystemHandler.Health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		}

		r.Route("/emails", func(r chi.Router) {
			r.Post("/send", cfg.EmailHandler.Send)
			r.Post("/batch", cfg.EmailHandler.Batch)
			r.Post("/preview", cfg.EmailHandler.Preview)
			r.Get("/inbox", cfg.EmailHandler.Inbox)
			r.Post("/process-inbox", cfg.EmailHandler.ProcessInbox)
		})

		r.Route("/policies", func(r chi.Router) {
			r.Post("/add", cfg.PolicyHandler.Add)
			r.Get("/search", cfg.PolicyHandler.Search)
			r.Get("/all", cfg.PolicyHandler.All)
			r.Get("/{id}", cfg.PolicyHandler.Get)
			r.Put("/{id}", cfg.PolicyHandler.Update)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cfg.CacheHandler.Stats)
			r.Post("/clear", cfg.CacheHandler.Clear)
		})
	})

	return r
}
