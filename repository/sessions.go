package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

// Sessions implements auth.Sessions over bun. Every mutation is a single
// statement; conditional ones report whether they matched a row.
type Sessions struct {
	db bun.IDB
}

// NewSessions creates the sessions repository.
func NewSessions(db bun.IDB) *Sessions {
	return &Sessions{db: db}
}

func (r *Sessions) Create(ctx context.Context, session *auth.Session) error {
	if _, err := r.db.NewInsert().Model(session).Exec(ctx); err != nil {
		return MapError(err, "create session")
	}
	return nil
}

func (r *Sessions) GetBySessionToken(ctx context.Context, digest string) (*auth.Session, error) {
	return r.getBy(ctx, "session_token", digest)
}

func (r *Sessions) GetByRefreshToken(ctx context.Context, digest string) (*auth.Session, error) {
	return r.getBy(ctx, "refresh_token", digest)
}

func (r *Sessions) getBy(ctx context.Context, column, digest string) (*auth.Session, error) {
	if digest == "" {
		return nil, auth.ErrNotFound
	}

	session := new(auth.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("?TableAlias.? = ?", bun.Ident(column), digest).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "get session")
	}
	return session, nil
}

// Rotate swaps both tokens in one UPDATE guarded by the current refresh digest.
func (r *Sessions) Rotate(ctx context.Context, id, refreshDigest string, next auth.SessionRotation) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*auth.Session)(nil)).
		Set("session_token = ?", next.SessionToken).
		Set("session_expires_at = ?", next.SessionExpiresAt).
		Set("refresh_token = ?", next.RefreshToken).
		Set("refresh_expires_at = ?", next.RefreshExpiresAt).
		Set("rotated_at = ?", next.RotatedAt).
		Where("id = ?", id).
		Where("refresh_token = ?", refreshDigest).
		Exec(ctx)
	if err != nil {
		return false, MapError(err, "rotate session")
	}

	n, err := rowsAffected(res, "rotate session")
	return n == 1, err
}

func (r *Sessions) DeleteIfRefresh(ctx context.Context, id, refreshDigest string) (bool, error) {
	return r.deleteIf(ctx, id, "refresh_token", refreshDigest)
}

func (r *Sessions) DeleteIfSession(ctx context.Context, id, sessionDigest string) (bool, error) {
	return r.deleteIf(ctx, id, "session_token", sessionDigest)
}

func (r *Sessions) deleteIf(ctx context.Context, id, column, digest string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("id = ?", id).
		Where("? = ?", bun.Ident(column), digest).
		Exec(ctx)
	if err != nil {
		return false, MapError(err, "delete session")
	}

	n, err := rowsAffected(res, "delete session")
	return n == 1, err
}

func (r *Sessions) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := r.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, MapError(err, "delete user sessions")
	}
	return rowsAffected(res, "delete user sessions")
}

func (r *Sessions) DeleteByUserExcept(ctx context.Context, userID uuid.UUID, keepID string) (int, error) {
	res, err := r.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("user_id = ?", userID).
		Where("id <> ?", keepID).
		Exec(ctx)
	if err != nil {
		return 0, MapError(err, "delete other user sessions")
	}
	return rowsAffected(res, "delete other user sessions")
}

// ListByUser returns the user's sessions, newest first.
func (r *Sessions) ListByUser(ctx context.Context, userID uuid.UUID) ([]*auth.Session, error) {
	sessions := make([]*auth.Session, 0)
	err := r.db.NewSelect().
		Model(&sessions).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "list sessions")
	}
	return sessions, nil
}

// PurgeExpired removes sessions whose refresh token expired at or before before.
func (r *Sessions) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*auth.Session)(nil)).
		Where("refresh_expires_at <= ?", before).
		Exec(ctx)
	if err != nil {
		return 0, MapError(err, "purge sessions")
	}
	return rowsAffected(res, "purge sessions")
}
