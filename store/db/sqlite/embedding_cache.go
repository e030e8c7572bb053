package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/store"
)

// Vectors are stored as little-endian float32 BLOBs. Cosine math happens in
// the application layer; sqlite only persists the hash -> vector mapping.

func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid embedding BLOB length: %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// GetEmbedding returns the cache entry for (content_hash, model), or nil when
// no entry exists.
func (d *DB) GetEmbedding(ctx context.Context, find *store.FindEmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error) {
	stmt := `SELECT content_hash, model, embedding, created_ts, updated_ts
		FROM embedding_cache
		WHERE content_hash = ? AND model = ?`

	entry := &store.EmbeddingCacheEntry{}
	var blob []byte
	err := d.db.QueryRowContext(ctx, stmt, find.ContentHash, find.Model).Scan(
		&entry.ContentHash,
		&entry.Model,
		&blob,
		&entry.CreatedTs,
		&entry.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding cache entry")
	}

	entry.Embedding, err = blobToFloat32Array(blob)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpsertEmbedding appends a cache entry. The write is idempotent: replaying
// the same hash/vector pair replaces the row with identical content.
func (d *DB) UpsertEmbedding(ctx context.Context, entry *store.EmbeddingCacheEntry) (*store.EmbeddingCacheEntry, error) {
	now := time.Now().Unix()
	if entry.CreatedTs == 0 {
		entry.CreatedTs = now
	}
	entry.UpdatedTs = now

	stmt := `INSERT INTO embedding_cache (content_hash, model, embedding, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (content_hash, model) DO UPDATE SET
			embedding = excluded.embedding,
			updated_ts = excluded.updated_ts`

	_, err := d.db.ExecContext(ctx, stmt,
		entry.ContentHash,
		entry.Model,
		float32ArrayToBLOB(entry.Embedding),
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
