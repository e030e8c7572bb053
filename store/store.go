// Package store provides access to the classroom data: the roster, the
// activity library, the embedding cache and saved activity plans.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/internal/profile"
)

// Driver is the database abstraction for persisted state.
type Driver interface {
	GetDB() *sql.DB

	GetEmbedding(ctx context.Context, find *FindEmbeddingCacheEntry) (*EmbeddingCacheEntry, error)
	UpsertEmbedding(ctx context.Context, entry *EmbeddingCacheEntry) (*EmbeddingCacheEntry, error)
	CountEmbeddings(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Store provides access to all persisted and file-backed objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	roster  *Roster
	library *Library
}

// New creates a new Store instance.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// LoadClassroom loads the roster and activity library the profile points at.
// Both are loaded once and kept for the lifetime of the store.
func (s *Store) LoadClassroom() error {
	if s.profile.RosterPath != "" {
		roster, err := LoadRoster(s.profile.RosterPath)
		if err != nil {
			return err
		}
		s.roster = roster
	}
	if s.profile.LibraryDir != "" {
		library, err := LoadLibrary(s.profile.LibraryDir)
		if err != nil {
			return err
		}
		s.library = library
	}
	return nil
}

// SetRoster replaces the roster, primarily for tests.
func (s *Store) SetRoster(roster *Roster) {
	s.roster = roster
}

// SetLibrary replaces the library, primarily for tests.
func (s *Store) SetLibrary(library *Library) {
	s.library = library
}

// Roster returns the loaded roster, which may be nil when no roster path was
// configured.
func (s *Store) Roster() *Roster {
	return s.roster
}

// Library returns the loaded activity library. An empty library is valid: the
// retrieval engine returns no references and generation runs unconditioned.
func (s *Store) Library() *Library {
	if s.library == nil {
		return &Library{}
	}
	return s.library
}

// SaveFinalActivity writes an accepted plan into the data directory, both as
// markdown for the teacher and as JSON for later library curation. Returns
// the markdown path.
func (s *Store) SaveFinalActivity(title, markdown string, structured any) (string, error) {
	dir := filepath.Join(s.profile.Data, "actividades")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create activities directory")
	}

	base := fmt.Sprintf("%s_%s", slugify(title), time.Now().Format("20060102_150405"))

	mdPath := filepath.Join(dir, base+".md")
	if err := os.WriteFile(mdPath, []byte(markdown), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write activity markdown")
	}

	data, err := json.MarshalIndent(structured, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal activity")
	}
	if err := os.WriteFile(filepath.Join(dir, base+".json"), data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write activity json")
	}

	return mdPath, nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "actividad"
	}
	return b.String()
}
