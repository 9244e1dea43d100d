// Package migrate applies the embedded SQL schema using golang-migrate.
package migrate

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Manager runs migrations against one database.
type Manager struct {
	m *migrate.Migrate
}

// NewManager opens a migrator for dsn. Accepts postgres:// and postgresql:// URLs.
func NewManager(dsn string) (*Manager, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("migrate: DATABASE_URL is not set")
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, driverURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Manager{m: m}, nil
}

// Close releases the source and database handles.
func (m *Manager) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies all pending migrations. Being already current is not an error.
func (m *Manager) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Manager) Down() error {
	if err := m.m.Steps(-1); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, migrate.ErrNilVersion) {
			return errors.New("no migrations applied")
		}
		return err
	}
	return nil
}

// Status reports the current version and whether a failed migration left it dirty.
// Version 0 means nothing has been applied.
func (m *Manager) Status() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Run applies migrations in direction "up" or "down".
func Run(dsn, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	mgr, err := NewManager(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()
	if direction == "up" {
		return mgr.Up()
	}
	return mgr.Down()
}

// Files lists the embedded migration file names in order.
func Files() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// driverURL rewrites a libpq-style URL to the pgx5 scheme expected by the driver.
func driverURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
