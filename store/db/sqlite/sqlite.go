package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/KrolinaTF/IA4Edu/internal/profile"
)

// DB is the sqlite-backed driver. It is the default for local single-teacher
// use: the only persisted state is the embedding cache, which is read-mostly
// and append-on-miss, a good fit for a single WAL connection.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the sqlite database at the profile's DSN.
//
// Notes on the pragmas:
// - busy_timeout avoids "database is locked" when two sessions miss the
//   cache at the same moment.
// - WAL journal mode is the recommended mode and keeps readers unblocked
//   while a miss is being appended.
// - With the `modernc.org/sqlite` driver each pragma must be prefixed
//   with `_pragma=`.
func NewDB(profile *profile.Profile) (*DB, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the embedding cache table when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		PRIMARY KEY (content_hash, model)
	)`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to create embedding_cache table")
	}
	return nil
}
