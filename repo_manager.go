package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users persists accounts and their local passwords.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	// GetByIdentifier resolves a uuid, an email or a username.
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role UserRole) (*User, error)
	// DeleteTx removes the user together with its password, provider links and sessions.
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	GetPassword(ctx context.Context, userID uuid.UUID) (*Password, error)
	SetPasswordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, hash string) error
}

// SessionRotation carries the replacement digests and expiries for a conditional rotation.
type SessionRotation struct {
	SessionToken     string
	SessionExpiresAt time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	RotatedAt        time.Time
}

// Sessions persists session rows. Token arguments are digests.
type Sessions interface {
	Create(ctx context.Context, session *Session) error
	GetBySessionToken(ctx context.Context, digest string) (*Session, error)
	GetByRefreshToken(ctx context.Context, digest string) (*Session, error)
	// Rotate swaps both tokens only if the row still holds refreshDigest.
	// It reports false when another caller rotated or deleted the row first.
	Rotate(ctx context.Context, id, refreshDigest string, next SessionRotation) (bool, error)
	// DeleteIfRefresh removes the row only if it still holds refreshDigest.
	DeleteIfRefresh(ctx context.Context, id, refreshDigest string) (bool, error)
	// DeleteIfSession removes the row only if it still holds sessionDigest.
	DeleteIfSession(ctx context.Context, id, sessionDigest string) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error)
	// DeleteByUserExcept removes every session of the user but keepID.
	DeleteByUserExcept(ctx context.Context, userID uuid.UUID, keepID string) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

// OAuthAccounts persists federated identity links.
type OAuthAccounts interface {
	FindByProviderSubject(ctx context.Context, provider, subject string) (*OAuthAccount, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*OAuthAccount, error)
	CreateTx(ctx context.Context, tx bun.IDB, account *OAuthAccount) (*OAuthAccount, error)
	UpdateTokens(ctx context.Context, account *OAuthAccount) error
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Sessions() Sessions
	OAuthAccounts() OAuthAccounts
}
