package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL       = time.Hour
	DefaultNamespace = "autoreply:"

	pingTimeout = 3 * time.Second
	scanBatch   = 500
)

// Config holds Redis cache configuration
type Config struct {
	URL       string
	TTL       time.Duration
	Namespace string
}

// RedisCache is a Cache backed by Redis. When Redis cannot be reached at
// construction it stays disabled for the life of the process.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	namespace string
}

// NewRedisCache connects to Redis. It never fails: an invalid URL or a failed
// PING yields a disabled cache and a log line.
func NewRedisCache(ctx context.Context, cfg Config) *RedisCache {
	c := &RedisCache{ttl: cfg.TTL, namespace: cfg.Namespace}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.namespace == "" {
		c.namespace = DefaultNamespace
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("cache: invalid redis url, caching disabled: %v", err)
		return c
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("cache: redis not available, caching disabled: %v", err)
		_ = client.Close()
		return c
	}

	log.Printf("cache: connected to redis at %s (ttl %s)", opts.Addr, c.ttl)
	c.client = client
	return c
}

// Available reports whether the cache has a live backend.
func (c *RedisCache) Available() bool {
	return c.client != nil
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) bool {
	if c.client == nil {
		return false
	}

	raw, err := c.client.Get(ctx, c.namespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache: get %s failed: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("cache: decode %s failed: %v", key, err)
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if c.client == nil {
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: encode %s failed: %v", key, err)
		return false
	}

	if err := c.client.Set(ctx, c.namespace+key, raw, ttl).Err(); err != nil {
		log.Printf("cache: set %s failed: %v", key, err)
		return false
	}
	return true
}

func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	if c.client == nil {
		return false
	}
	if err := c.client.Del(ctx, c.namespace+key).Err(); err != nil {
		log.Printf("cache: delete %s failed: %v", key, err)
		return false
	}
	return true
}

// Clear removes every key in the cache namespace.
func (c *RedisCache) Clear(ctx context.Context) bool {
	if c.client == nil {
		return false
	}

	iter := c.client.Scan(ctx, 0, c.namespace+"*", scanBatch).Iterator()
	keys := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatch {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				log.Printf("cache: clear failed: %v", err)
				return false
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: clear failed: %v", err)
		return false
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			log.Printf("cache: clear failed: %v", err)
			return false
		}
	}
	return true
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	if c.client == nil {
		return Stats{Available: false, Status: StatusUnavailable}
	}

	info, err := c.client.Info(ctx).Result()
	if err != nil {
		log.Printf("cache: info failed: %v", err)
		return Stats{Available: true, Error: err.Error()}
	}

	fields := parseInfo(info)
	return Stats{
		Available:        true,
		ConnectedClients: infoInt(fields, "connected_clients"),
		UsedMemory:       infoString(fields, "used_memory_human", "0B"),
		Hits:             infoInt(fields, "keyspace_hits"),
		Misses:           infoInt(fields, "keyspace_misses"),
	}
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// parseInfo reads the key:value lines of an INFO reply.
func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}

func infoInt(fields map[string]string, key string) int64 {
	n, _ := strconv.ParseInt(fields[key], 10, 64)
	return n
}

func infoString(fields map[string]string, key, fallback string) string {
	if v, ok := fields[key]; ok && v != "" {
		return v
	}
	return fallback
}
