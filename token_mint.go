package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goliatone/go-errors"
)

const (
	// DefaultSessionLifetime is how long a session token stays usable.
	DefaultSessionLifetime = time.Hour
	// DefaultRefreshLifetime is how long a refresh token can renew a session.
	DefaultRefreshLifetime = 30 * 24 * time.Hour

	tokenBytes = 32
)

// TokenIssuer mints opaque bearer tokens and computes their expiry.
type TokenIssuer struct {
	sessionLifetime time.Duration
	refreshLifetime time.Duration
}

// NewTokenIssuer validates the lifetimes. Zero values use the defaults.
func NewTokenIssuer(sessionLifetime, refreshLifetime time.Duration) (*TokenIssuer, error) {
	if sessionLifetime == 0 {
		sessionLifetime = DefaultSessionLifetime
	}
	if refreshLifetime == 0 {
		refreshLifetime = DefaultRefreshLifetime
	}

	if sessionLifetime < 0 || refreshLifetime < 0 {
		return nil, errors.New("token lifetimes must be positive", errors.CategoryValidation).
			WithTextCode(TextCodeValidation)
	}

	if sessionLifetime >= refreshLifetime {
		return nil, errors.New(
			fmt.Sprintf("session lifetime %s must be shorter than refresh lifetime %s", sessionLifetime, refreshLifetime),
			errors.CategoryValidation,
		).WithTextCode(TextCodeValidation)
	}

	return &TokenIssuer{
		sessionLifetime: sessionLifetime,
		refreshLifetime: refreshLifetime,
	}, nil
}

// SessionLifetime returns the configured session token lifetime.
func (t *TokenIssuer) SessionLifetime() time.Duration {
	return t.sessionLifetime
}

// RefreshLifetime returns the configured refresh token lifetime.
func (t *TokenIssuer) RefreshLifetime() time.Duration {
	return t.refreshLifetime
}

// IssueToken returns 256 random bits, base64url encoded without padding.
func (t *TokenIssuer) IssueToken() (string, error) {
	return IssueToken()
}

// Pair mints a fresh session and refresh token with expiries computed from now.
func (t *TokenIssuer) Pair(now time.Time) (*Credentials, error) {
	session, err := t.IssueToken()
	if err != nil {
		return nil, err
	}
	refresh, err := t.IssueToken()
	if err != nil {
		return nil, err
	}

	return &Credentials{
		SessionToken:     session,
		SessionExpiresAt: now.Add(t.sessionLifetime),
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(t.refreshLifetime),
	}, nil
}

// Digest is the storage key for a bearer token.
func (t *TokenIssuer) Digest(token string) string {
	return DigestToken(token)
}

// IssueToken returns 256 random bits, base64url encoded without padding.
func IssueToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to read random bytes")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DigestToken returns the hex SHA-256 of token.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
