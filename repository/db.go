package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

// Open connects to the configured database and verifies it answers.
// SQLite connections are limited to one so the foreign_keys pragma holds
// for every statement.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch strings.ToLower(opts.Driver) {
	case DriverSQLite, "sqlite3", "":
		dsn := opts.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())

		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	case DriverPostgres, "pgx":
		sqldb, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(opts.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	if opts.MaxIdleTime > 0 {
		sqldb.SetConnMaxIdleTime(opts.MaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	return db, nil
}

// Dialect returns the goose dialect name for db.
func Dialect(db *bun.DB) string {
	if db.Dialect().Name() == dialect.PG {
		return "postgres"
	}
	return "sqlite3"
}
