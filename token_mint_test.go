package auth_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
)

func TestIssueTokenEntropy(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		token, err := auth.IssueToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, 32, "256 bits")

		_, dup := seen[token]
		assert.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestTokenIssuerLifetimes(t *testing.T) {
	issuer, err := auth.NewTokenIssuer(0, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.SessionLifetime())
	assert.Equal(t, 30*24*time.Hour, issuer.RefreshLifetime())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	creds, err := issuer.Pair(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), creds.SessionExpiresAt)
	assert.Equal(t, now.Add(30*24*time.Hour), creds.RefreshExpiresAt)
	assert.NotEqual(t, creds.SessionToken, creds.RefreshToken)

	_, err = auth.NewTokenIssuer(2*time.Hour, time.Hour)
	assert.Error(t, err, "session must expire before refresh")

	_, err = auth.NewTokenIssuer(-time.Minute, 0)
	assert.Error(t, err)
}

func TestDigestToken(t *testing.T) {
	d := auth.DigestToken("abc")
	assert.Len(t, d, 64)
	assert.Equal(t, d, auth.DigestToken("abc"))
	assert.NotEqual(t, d, auth.DigestToken("abd"))
	assert.NotEqual(t, "abc", d)
}
