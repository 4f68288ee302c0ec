package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

// OAuthAccounts implements auth.OAuthAccounts over bun.
type OAuthAccounts struct {
	db bun.IDB
}

// NewOAuthAccounts creates the provider link repository.
func NewOAuthAccounts(db bun.IDB) *OAuthAccounts {
	return &OAuthAccounts{db: db}
}

func (r *OAuthAccounts) FindByProviderSubject(ctx context.Context, provider, subject string) (*auth.OAuthAccount, error) {
	account := new(auth.OAuthAccount)
	err := r.db.NewSelect().
		Model(account).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.provider_user_id = ?", subject).
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "find provider account")
	}
	return account, nil
}

func (r *OAuthAccounts) ListByUser(ctx context.Context, userID uuid.UUID) ([]*auth.OAuthAccount, error) {
	accounts := make([]*auth.OAuthAccount, 0)
	err := r.db.NewSelect().
		Model(&accounts).
		Where("?TableAlias.user_id = ?", userID).
		Order("provider ASC").
		Scan(ctx)
	if err != nil {
		return nil, MapError(err, "list provider accounts")
	}
	return accounts, nil
}

func (r *OAuthAccounts) CreateTx(ctx context.Context, tx bun.IDB, account *auth.OAuthAccount) (*auth.OAuthAccount, error) {
	db := r.db
	if tx != nil {
		db = tx
	}

	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	if _, err := db.NewInsert().Model(account).Exec(ctx); err != nil {
		return nil, MapError(err, "create provider account")
	}
	return account, nil
}

// UpdateTokens stores the provider tokens of an existing link.
func (r *OAuthAccounts) UpdateTokens(ctx context.Context, account *auth.OAuthAccount) error {
	account.UpdatedAt = time.Now().UTC()

	res, err := r.db.NewUpdate().
		Model(account).
		Column("access_token", "refresh_token", "expires_at", "scopes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return MapError(err, "update provider tokens")
	}

	n, err := rowsAffected(res, "update provider tokens")
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
