package auth

import (
	"context"
	"strings"
	"sync"
)

// UserProvider verifies local credentials.
type UserProvider struct {
	users  Users
	hasher PasswordHasher
	logger Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(users Users, hasher PasswordHasher) *UserProvider {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &UserProvider{
		users:  users,
		hasher: hasher,
		logger: defLogger{},
	}
}

// WithLogger sets the logger.
func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = ResolveLogger("auth.user_provider", nil, l)
	return u
}

// VerifyIdentity will find the user, compare to the password, and return it.
// Unknown users, users without a local password and mismatches all
// surface as ErrInvalidCredentials. A disabled account is reported only
// after the password matched.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := u.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if IsNotFound(err) {
			u.burnCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	pwd, err := u.users.GetPassword(ctx, user.ID)
	if err != nil {
		if IsNotFound(err) {
			u.burnCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := u.hasher.Compare(password, pwd.PasswordHash); err != nil {
		if IsInvalidCredentials(err) {
			return nil, ErrInvalidCredentials
		}
		u.logger.Error("password compare failed", "user_id", user.ID.String(), "error", err)
		return nil, ErrInvalidCredentials
	}

	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	return user, nil
}

// burnCompare spends one hash comparison so unknown accounts cost the same as known ones.
func (u *UserProvider) burnCompare(password string) {
	u.dummyOnce.Do(func() {
		h, err := u.hasher.Hash("allergy-snatcher-dummy")
		if err == nil {
			u.dummyHash = h
		}
	})
	if u.dummyHash != "" {
		_ = u.hasher.Compare(password, u.dummyHash)
	}
}
