package fipe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"go.uber.org/zap"
)

// Cache stores upstream bodies. *redis.Cache satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedClient is a read-through cache in front of another Fetcher. Only
// successful bodies are stored, and cache failures fall through to the
// upstream.
type CachedClient struct {
	next  Fetcher
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedClient wraps next
func NewCachedClient(next Fetcher, cache Cache, ttl time.Duration, log *logger.Logger) *CachedClient {
	if log == nil {
		log = logger.Get()
	}
	return &CachedClient{next: next, cache: cache, ttl: ttl, log: log}
}

// Fetch implements Fetcher
func (c *CachedClient) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	data, ok, err := c.cache.Get(ctx, path)
	switch {
	case err != nil:
		c.log.Warn("FIPE cache read failed", zap.String("path", path), zap.Error(err))
	case ok && json.Valid(data):
		return json.RawMessage(data), nil
	}

	body, err := c.next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, path, body, c.ttl); err != nil {
		c.log.Warn("FIPE cache write failed", zap.String("path", path), zap.Error(err))
	}
	return body, nil
}
