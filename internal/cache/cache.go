// Package cache provides a small byte cache for per-town statistics
// snapshots, with an in-memory default and an optional Redis backend.
package cache

import (
	"context"
	"os"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache is a minimal get/set byte store with per-key TTL. A miss is
// (nil, false, nil); err is reserved for backend failures so callers can
// distinguish "not cached" from "cache down".
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns the in-memory implementation. It never fails.
func New() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

// NewAuto returns a Redis-backed cache when REDIS_ADDR is set, otherwise the
// in-memory implementation.
func NewAuto() Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedis(addr)
	}
	return New()
}

// NewRedis returns a cache backed by the Redis instance at addr.
func NewRedis(addr string) Cache {
	return &redisCache{r: redis.NewClient(&redis.Options{Addr: addr})}
}

type redisCache struct{ r *redis.Client }

const redisOpTimeout = 500 * time.Millisecond

func (r *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return r.r.Set(ctx, key, val, ttl).Err()
}
