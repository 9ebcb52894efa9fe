package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/autoreply/internal/api"
	"github.com/cloo-solutions/autoreply/internal/cache"
)

type CacheAdmin interface {
	Clear(ctx context.Context) bool
	Stats(ctx context.Context) cache.Stats
}

type CacheHandler struct {
	cache CacheAdmin
}

func NewCacheHandler(c CacheAdmin) *CacheHandler {
	return &CacheHandler{cache: c}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]cache.Stats{"cache_stats": h.cache.Stats(r.Context())})
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	message := "Cache cleared successfully"
	if !h.cache.Clear(r.Context()) {
		message = cache.StatusUnavailable
	}
	api.JSON(w, http.StatusOK, map[string]string{"message": message})
}
