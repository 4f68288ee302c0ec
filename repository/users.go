package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

// Users implements auth.Users over bun.
type Users struct {
	db    bun.IDB
	clock auth.Clock
}

// NewUsers creates the users repository.
func NewUsers(db bun.IDB) *Users {
	return &Users{db: db, clock: func() time.Time { return time.Now().UTC() }}
}

func (r *Users) idb(tx bun.IDB) bun.IDB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *Users) GetByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	user := new(auth.User)
	err := r.db.NewSelect().
		Model(user).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "get user by id")
	}
	return user, nil
}

func (r *Users) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	user := new(auth.User)
	err := r.db.NewSelect().
		Model(user).
		Where("?TableAlias.username = ?", strings.TrimSpace(username)).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "get user by username")
	}
	return user, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.GetByEmailTx(ctx, nil, email)
}

func (r *Users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*auth.User, error) {
	user := new(auth.User)
	err := r.idb(tx).NewSelect().
		Model(user).
		Where("?TableAlias.email = ?", normalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "get user by email")
	}
	return user, nil
}

// GetByIdentifier resolves a uuid, then a username, then an email.
func (r *Users) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	identifier = strings.TrimSpace(identifier)

	if id, err := uuid.Parse(identifier); err == nil {
		return r.GetByID(ctx, id)
	}

	user, err := r.GetByUsername(ctx, identifier)
	if err == nil || !auth.IsNotFound(err) {
		return user, err
	}

	if !strings.Contains(identifier, "@") {
		return nil, err
	}
	return r.GetByEmail(ctx, identifier)
}

func (r *Users) List(ctx context.Context) ([]*auth.User, error) {
	users := make([]*auth.User, 0)
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "list users")
	}
	return users, nil
}

func (r *Users) CreateTx(ctx context.Context, tx bun.IDB, user *auth.User) (*auth.User, error) {
	now := r.clock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = auth.RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.Email = normalizeEmail(user.Email)
	user.Username = strings.TrimSpace(user.Username)

	if _, err := r.idb(tx).NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, MapError(err, "create user")
	}
	return user, nil
}

func (r *Users) UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role auth.UserRole) (*auth.User, error) {
	db := r.idb(tx)

	res, err := db.NewUpdate().
		Model((*auth.User)(nil)).
		Set("role = ?", role).
		Set("updated_at = ?", r.clock()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, MapError(err, "update user role")
	}

	n, err := rowsAffected(res, "update user role")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, auth.ErrNotFound
	}

	user := new(auth.User)
	if err := db.NewSelect().Model(user).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, MapError(err, "reload user")
	}
	return user, nil
}

// DeleteTx removes the user. Passwords, provider links and sessions go with
// it through ON DELETE CASCADE.
func (r *Users) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := r.idb(tx).NewDelete().
		Model((*auth.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return MapError(err, "delete user")
	}

	n, err := rowsAffected(res, "delete user")
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *Users) GetPassword(ctx context.Context, userID uuid.UUID) (*auth.Password, error) {
	pwd := new(auth.Password)
	err := r.db.NewSelect().
		Model(pwd).
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "get password")
	}
	return pwd, nil
}

func (r *Users) SetPasswordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hash string) error {
	pwd := &auth.Password{
		UserID:       userID,
		PasswordHash: hash,
		UpdatedAt:    r.clock(),
	}

	_, err := r.idb(tx).NewInsert().
		Model(pwd).
		On("CONFLICT (user_id) DO UPDATE").
		Set("password_hash = EXCLUDED.password_hash").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return MapError(err, "set password")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
