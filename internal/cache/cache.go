// Package cache provides a best-effort key/value cache for generated replies.
// Cache failures never surface to callers: a miss and a broken backend look
// the same.
package cache

import (
	"context"
	"time"
)

// StatusUnavailable is reported by Stats when no backend is reachable.
const StatusUnavailable = "Redis not available"

// Cache stores JSON-encodable values with a time-to-live.
type Cache interface {
	// Get decodes the value stored under key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores value under key. ttl <= 0 uses the cache default.
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	Clear(ctx context.Context) bool
	Stats(ctx context.Context) Stats
}

// Stats describes the backend as exposed by GET /cache/stats.
type Stats struct {
	Available        bool   `json:"available"`
	ConnectedClients int64  `json:"connected_clients,omitempty"`
	UsedMemory       string `json:"used_memory,omitempty"`
	Hits             int64  `json:"keyspace_hits"`
	Misses           int64  `json:"keyspace_misses"`
	Status           string `json:"status,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Noop is a permanently disabled cache.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string, dest any) bool { return false }

func (Noop) Set(ctx context.Context, key string, value any, ttl time.Duration) bool { return false }

func (Noop) Delete(ctx context.Context, key string) bool { return false }

func (Noop) Clear(ctx context.Context) bool { return false }

func (Noop) Stats(ctx context.Context) Stats {
	return Stats{Available: false, Status: StatusUnavailable}
}
