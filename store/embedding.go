package store

import "context"

// EmbeddingCacheEntry maps a normalized content hash to its vector. Entries
// are append-only: a vector is never rewritten in place, it is replaced only
// when the source text, and with it the hash, changes.
type EmbeddingCacheEntry struct {
	ContentHash string
	Model       string
	Embedding   []float32
	CreatedTs   int64
	UpdatedTs   int64
}

// FindEmbeddingCacheEntry selects cache entries by hash and model.
type FindEmbeddingCacheEntry struct {
	ContentHash string
	Model       string
}

// GetEmbedding returns the cached vector for a content hash, or nil when the
// cache has no entry for it.
func (s *Store) GetEmbedding(ctx context.Context, find *FindEmbeddingCacheEntry) (*EmbeddingCacheEntry, error) {
	return s.driver.GetEmbedding(ctx, find)
}

// UpsertEmbedding persists a cache entry. Writing the same hash/vector pair
// twice is harmless, so concurrent sessions need no coordination beyond the
// driver's atomic row replace.
func (s *Store) UpsertEmbedding(ctx context.Context, entry *EmbeddingCacheEntry) (*EmbeddingCacheEntry, error) {
	return s.driver.UpsertEmbedding(ctx, entry)
}

// CountEmbeddings reports how many entries the cache holds, for diagnostics.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	return s.driver.CountEmbeddings(ctx)
}
