// Package migrations applies the search-index database schema. The SQL
// files are embedded so the index is self-provisioning wherever it is
// opened.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed *.sql
var schemaFS embed.FS

// Run applies all pending schema migrations to the index database.
func Run(db *sql.DB, logger zerolog.Logger) error {
	source, err := iofs.New(schemaFS, ".")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite3 migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("initializing migrations: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug().Msg("index schema already up to date")
	case err != nil:
		return fmt.Errorf("applying migrations: %w", err)
	default:
		logger.Info().Msg("index schema migrations applied")
	}
	return nil
}
