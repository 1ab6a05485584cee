// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/HiNala/bio-hack-sub000/internal/logger"
	"github.com/HiNala/bio-hack-sub000/internal/metrics"
)

// CacheStore persists query vectors.
type CacheStore interface {
	QueryEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	PutQueryEmbedding(ctx context.Context, key, model string, vec []float32) error
}

// QueryCache memoizes query embeddings per model. Cache failures are logged
// and treated as misses.
type QueryCache struct {
	store CacheStore
	model string
	log   *zap.Logger
}

// NewQueryCache creates a cache for vectors produced by model.
func NewQueryCache(st CacheStore, model string, log *zap.Logger) *QueryCache {
	return &QueryCache{store: st, model: model, log: logger.OrNop(log)}
}

// Key returns the cache key of text: the hex SHA-256 of model and text.
func (c *QueryCache) Key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for text.
func (c *QueryCache) Get(ctx context.Context, text string) ([]float32, bool) {
	v, ok, err := c.store.QueryEmbedding(ctx, c.Key(text))
	if err != nil {
		c.log.Warn("query cache lookup failed", zap.Error(err))
		ok = false
	}
	if ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return v, true
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

// Put stores vec for text.
func (c *QueryCache) Put(ctx context.Context, text string, vec []float32) {
	if err := c.store.PutQueryEmbedding(ctx, c.Key(text), c.model, vec); err != nil {
		c.log.Warn("query cache write failed", zap.Error(err))
	}
}
