package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"vidrag/internal/domain"
	"vidrag/internal/logger"
)

// CacheConfig configures CachedEmbedder.
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       24 * time.Hour,
		KeyPrefix: "vidrag:emb:",
	}
}

// CachedEmbedder wraps an Embedder with a redis-backed cache. Redis failures
// are logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner  domain.Embedder
	redis  goredis.UniversalClient
	config CacheConfig
}

// NewCachedEmbedder returns inner wrapped with a cache. A nil client disables
// caching.
func NewCachedEmbedder(inner domain.Embedder, client goredis.UniversalClient, cfg CacheConfig) *CachedEmbedder {
	def := DefaultCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	return &CachedEmbedder{inner: inner, redis: client, config: cfg}
}

func (c *CachedEmbedder) Name() string { return c.inner.Name() }

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Prepare forwards to the wrapped embedder when it needs the corpus.
func (c *CachedEmbedder) Prepare(corpus []string) error {
	if p, ok := c.inner.(Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

// key is scoped by embedder name so switching models never serves stale vectors.
func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Name() + "\x00" + Normalize(text)))
	return c.config.KeyPrefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.redis == nil {
		return c.inner.Embed(ctx, text)
	}
	key := c.key(text)

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if err := json.Unmarshal(data, &vec); err == nil && Check(vec, c.inner.Dimension()) == nil {
			logger.Debugw("embedding cache hit", "key", key)
			return vec, nil
		}
		logger.Warnw("corrupt cached embedding, deleting", "key", key)
		_ = c.redis.Del(ctx, key).Err()
	case !errors.Is(err, goredis.Nil):
		logger.Warnw("redis get failed, falling back to embedder", "error", err.Error())
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	data, err = json.Marshal(vec)
	if err != nil {
		return vec, nil
	}
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to cache embedding", "error", err.Error(), "key", key)
	}
	return vec, nil
}
