package repository

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// MigrateOption configures Migrate.
type MigrateOption func(*migrateOptions)

type migrateOptions struct {
	logger auth.Logger
}

// WithMigrationLogger routes goose output to logger. Without it goose is silent.
func WithMigrationLogger(l auth.Logger) MigrateOption {
	return func(o *migrateOptions) {
		o.logger = l
	}
}

// gooseLogger adapts auth.Logger to goose.Logger.
type gooseLogger struct {
	logger auth.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf must not return.
func (g gooseLogger) Fatalf(format string, v ...any) {
	g.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

// Migrate applies every pending migration to db.
func Migrate(ctx context.Context, db *bun.DB, opts ...MigrateOption) error {
	o := migrateOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	goose.SetLogger(gooseLogger{logger: auth.ResolveLogger("repository.migrate", nil, o.logger)})
	defer goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(Dialect(db)); err != nil {
		return fmt.Errorf("migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	return nil
}

// MigrationVersion reports the current schema version.
func MigrationVersion(ctx context.Context, db *bun.DB) (int64, error) {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if err := goose.SetDialect(Dialect(db)); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}
