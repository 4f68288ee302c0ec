package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/allergysnatcher/auth"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError translates driver errors into the auth error taxonomy.
// No rows is NotFound, a unique violation is Conflict and everything
// else is StorageUnavailable with the driver error as cause.
func MapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	if auth.TextCode(err) != "" {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return auth.NotFoundError(err, msg)
	}

	if isUniqueViolation(err) {
		return auth.ConflictError(err, msg)
	}

	if isForeignKeyViolation(err) {
		return auth.NotFoundError(err, msg)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	return auth.StorageError(err, msg)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func rowsAffected(res sql.Result, msg string) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, MapError(err, msg)
	}
	return int(n), nil
}
