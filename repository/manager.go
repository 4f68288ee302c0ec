package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

type mngr struct {
	db            *bun.DB
	users         auth.Users
	sessions      auth.Sessions
	oauthAccounts auth.OAuthAccounts
}

// NewRepositoryManager builds every repository over db.
func NewRepositoryManager(db *bun.DB) auth.RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsers(db),
		sessions:      NewSessions(db),
		oauthAccounts: NewOAuthAccounts(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.oauthAccounts == nil {
		return errors.New("repository oauth accounts should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return MapError(m.db.RunInTx(ctx, opts, f), "transaction failed")
	}
}

func (m mngr) Users() auth.Users {
	return m.users
}

func (m mngr) Sessions() auth.Sessions {
	return m.sessions
}

func (m mngr) OAuthAccounts() auth.OAuthAccounts {
	return m.oauthAccounts
}
