package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the Postgres driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/internal/profile"
)

// DB is the postgres-backed driver, intended for a shared embedding cache
// across several classroom machines. Requires the pgvector extension.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a postgres connection with the profile's DSN.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	return &DB{db: pgDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate enables pgvector and creates the embedding cache table when missing.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errors.Wrap(err, "failed to enable pgvector extension")
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		PRIMARY KEY (content_hash, model)
	)`, d.profile.EmbeddingDimensions)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to create embedding_cache table")
	}
	return nil
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
