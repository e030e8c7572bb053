// Package cache implements the persistent embedding cache: normalized
// content hash -> vector, backed by the store and filled on miss from the
// external embedding provider.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KrolinaTF/IA4Edu/ai/observability/logging"
	"github.com/KrolinaTF/IA4Edu/store"
)

// EmbeddingProvider is the slice of the provider interface the cache needs.
// Declared locally to keep the cache decoupled from the provider package.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Persister is the slice of the store the cache needs.
type Persister interface {
	GetEmbedding(ctx context.Context, find *store.FindEmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error)
	UpsertEmbedding(ctx context.Context, entry *store.EmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error)
}

// Metrics is the optional metrics hook.
type Metrics interface {
	RecordCacheHit(model string)
	RecordCacheMiss(model string)
}

// EmbeddingCache provides get-or-compute access to vectors keyed by the
// normalized content hash of their source text. Entries are append-only and
// idempotent, so the cache is safe for concurrent sessions; singleflight
// collapses concurrent misses for the same text into one provider call.
type EmbeddingCache struct {
	provider  EmbeddingProvider
	persister Persister
	metrics   Metrics
	logger    *logging.Logger
	group     singleflight.Group
}

// NewEmbeddingCache creates a new embedding cache.
func NewEmbeddingCache(provider EmbeddingProvider, persister Persister, metrics Metrics) *EmbeddingCache {
	return &EmbeddingCache{
		provider:  provider,
		persister: persister,
		metrics:   metrics,
		logger:    logging.Default().WithComponent("embedding_cache"),
	}
}

// NormalizeText lowercases the text and collapses runs of whitespace, so that
// editorial noise in a library file does not invalidate its cache entry.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ContentHash returns the hex SHA-256 of the normalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the vector for text, computing and persisting it on a
// cache miss. For a given hash the returned vector is stable: an entry is
// only ever replaced by an entry for a different hash.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	hash := ContentHash(text)
	model := c.provider.Model()

	entry, err := c.persister.GetEmbedding(ctx, &store.FindEmbeddingCacheEntry{
		ContentHash: hash,
		Model:       model,
	})
	if err != nil {
		c.logger.Warn("cache lookup failed, computing directly", "error", err)
	}
	if entry != nil {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(model)
		}
		return entry.Embedding, nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss(model)
	}

	vector, err, _ := c.group.Do(hash+"/"+model, func() (any, error) {
		// Re-check under singleflight: a concurrent caller may have
		// stored the entry while this one waited.
		if entry, err := c.persister.GetEmbedding(ctx, &store.FindEmbeddingCacheEntry{
			ContentHash: hash,
			Model:       model,
		}); err == nil && entry != nil {
			return entry.Embedding, nil
		}

		vector, err := c.provider.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		now := time.Now().Unix()
		if _, err := c.persister.UpsertEmbedding(ctx, &store.EmbeddingCacheEntry{
			ContentHash: hash,
			Model:       model,
			Embedding:   vector,
			CreatedTs:   now,
		}); err != nil {
			// The computed vector is still valid; losing the write only
			// costs one recomputation on the next run.
			c.logger.Warn("failed to persist embedding", "hash", hash, "error", err)
		}

		return vector, nil
	})
	if err != nil {
		return nil, err
	}

	return vector.([]float32), nil
}
