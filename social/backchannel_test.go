package social_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth/middleware/jwtware"
	"github.com/allergysnatcher/auth/social"
)

var (
	googleSecret = []byte("google-backchannel-secret-0123456789")
	corpSecret   = []byte("corp-backchannel-secret-0123456789ab")
)

func logoutToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func newVerifier(t *testing.T, now func() time.Time) *social.BackchannelVerifier {
	t.Helper()
	google, err := social.NewLogoutKey("google", "https://accounts.google.com", "google-client", jwtware.KeySet{
		SigningKey: jwtware.SigningKey{JWTAlg: jwt.SigningMethodHS256.Alg(), Key: googleSecret},
	})
	require.NoError(t, err)
	corp, err := social.NewLogoutKey("corp", "https://sso.corp.example", "corp-client", jwtware.KeySet{
		SigningKey: jwtware.SigningKey{JWTAlg: jwt.SigningMethodHS256.Alg(), Key: corpSecret},
	})
	require.NoError(t, err)
	return social.NewBackchannelVerifier(google, corp).WithClock(now)
}

func baseClaims(now time.Time, iss, aud string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":    iss,
		"aud":    aud,
		"sub":    "subject-1",
		"iat":    now.Unix(),
		"exp":    now.Add(2 * time.Minute).Unix(),
		"jti":    "jti-1",
		"events": map[string]any{social.BackchannelLogoutEvent: map[string]any{}},
	}
}

func TestBackchannelVerifierMatchesProvider(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, func() time.Time { return now })
	assert.Equal(t, 2, v.Len())

	claims, err := v.Verify(logoutToken(t, corpSecret, baseClaims(now, "https://sso.corp.example", "corp-client")))
	require.NoError(t, err)
	assert.Equal(t, "corp", claims.Provider)
	assert.Equal(t, "subject-1", claims.Subject)

	claims, err = v.Verify(logoutToken(t, googleSecret, baseClaims(now, "https://accounts.google.com", "google-client")))
	require.NoError(t, err)
	assert.Equal(t, "google", claims.Provider)
}

func TestBackchannelVerifierRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := newVerifier(t, func() time.Time { return now })

	withNonce := baseClaims(now, "https://accounts.google.com", "google-client")
	withNonce["nonce"] = "n"

	noSubject := baseClaims(now, "https://accounts.google.com", "google-client")
	delete(noSubject, "sub")

	wrongEvent := baseClaims(now, "https://accounts.google.com", "google-client")
	wrongEvent["events"] = map[string]any{"other": map[string]any{}}

	noEvents := baseClaims(now, "https://accounts.google.com", "google-client")
	delete(noEvents, "events")

	expired := baseClaims(now.Add(-time.Hour), "https://accounts.google.com", "google-client")

	cases := map[string]string{
		"wrong key":         logoutToken(t, []byte("attacker-secret-0123456789abcdefgh"), baseClaims(now, "https://accounts.google.com", "google-client")),
		"issuer of another": logoutToken(t, googleSecret, baseClaims(now, "https://sso.corp.example", "corp-client")),
		"wrong audience":    logoutToken(t, googleSecret, baseClaims(now, "https://accounts.google.com", "someone-else")),
		"id token":          logoutToken(t, googleSecret, withNonce),
		"no subject":        logoutToken(t, googleSecret, noSubject),
		"wrong event":       logoutToken(t, googleSecret, wrongEvent),
		"missing events":    logoutToken(t, googleSecret, noEvents),
		"expired":           logoutToken(t, googleSecret, expired),
		"garbage":           "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, social.ErrInvalidLogoutToken)
		})
	}
}
