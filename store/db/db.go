// Package db selects the concrete store driver from the profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/KrolinaTF/IA4Edu/internal/profile"
	"github.com/KrolinaTF/IA4Edu/store"
	"github.com/KrolinaTF/IA4Edu/store/db/postgres"
	"github.com/KrolinaTF/IA4Edu/store/db/sqlite"
)

// NewDBDriver creates a store driver based on the profile's driver setting.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported database driver %q", profile.Driver)
	}
}
