//go:build embed_migrations

package main

import (
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/doodlesbykumbi/medcattrainer-in-go/db"
)

func migrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(db.Migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to get embedded migrations: %w", err)
	}
	return sub, nil
}

func createMigrateInstance(dbURL string) (*migrate.Migrate, error) {
	sub, err := migrationsFS()
	if err != nil {
		return nil, err
	}
	d, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs driver: %w", err)
	}
	return migrate.NewWithSourceInstance("iofs", d, dbURL)
}

func listMigrationFiles() ([]string, error) {
	sub, err := migrationsFS()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	return upMigrations(entries), nil
}
