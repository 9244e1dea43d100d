// Package pg holds the PostgreSQL implementations of the credential and task stores.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// DB owns the connection pool shared by the stores.
type DB struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver with tuned pool defaults.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &DB{db: db}, nil
}

// Wrap adopts an existing handle, e.g. one created by sqlmock.
func Wrap(db *sql.DB) *DB { return &DB{db: db} }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) SQL() *sql.DB { return d.db }

// Ping reports whether the database answers within ctx.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.db == nil {
		return errors.New("database connection unavailable")
	}
	return d.db.PingContext(ctx)
}

// Auth returns the credential store backed by this pool.
func (d *DB) Auth() *AuthStore {
	return &AuthStore{db: d.db, q: d.db}
}

// Tasks returns the task store backed by this pool.
func (d *DB) Tasks() *TaskStore {
	return &TaskStore{db: sqlx.NewDb(d.db, "pgx")}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
