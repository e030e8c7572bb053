package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/store"
)

// GetEmbedding returns the cache entry for (content_hash, model), or nil when
// no entry exists.
func (d *DB) GetEmbedding(ctx context.Context, find *store.FindEmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error) {
	stmt := `SELECT content_hash, model, embedding, created_ts, updated_ts
		FROM embedding_cache
		WHERE content_hash = $1 AND model = $2`

	entry := &store.EmbeddingCacheEntry{}
	var vector pgvector.Vector
	err := d.db.QueryRowContext(ctx, stmt, find.ContentHash, find.Model).Scan(
		&entry.ContentHash,
		&entry.Model,
		&vector,
		&entry.CreatedTs,
		&entry.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding cache entry")
	}

	entry.Embedding = vector.Slice()
	return entry, nil
}

// UpsertEmbedding appends a cache entry, idempotently.
func (d *DB) UpsertEmbedding(ctx context.Context, entry *store.EmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error) {
	now := time.Now().Unix()
	if entry.CreatedTs == 0 {
		entry.CreatedTs = now
	}
	entry.UpdatedTs = now

	stmt := `INSERT INTO embedding_cache (content_hash, model, embedding, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (content_hash, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts`

	_, err := d.db.ExecContext(ctx, stmt,
		entry.ContentHash,
		entry.Model,
		pgvector.NewVector(entry.Embedding),
		entry.CreatedTs,
		entry.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert embedding cache entry")
	}
	return entry, nil
}

// CountEmbeddings returns the number of cached vectors.
func (d *DB) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embedding_cache").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count embedding cache entries")
	}
	return count, nil
}
