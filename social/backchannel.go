package social

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/allergysnatcher/auth/middleware/jwtware"
)

// BackchannelLogoutEvent is the OpenID Connect back-channel logout event type.
const BackchannelLogoutEvent = "http://schemas.openid.net/event/backchannel-logout"

// LogoutKey verifies logout tokens issued by one provider.
type LogoutKey struct {
	Provider string
	Issuer   string
	Audience string
	keyfunc  jwt.Keyfunc
}

// NewLogoutKey builds the verifier for provider from ks. An empty issuer or
// audience skips that claim check.
func NewLogoutKey(provider, issuer, audience string, ks jwtware.KeySet) (LogoutKey, error) {
	kf, err := jwtware.NewKeyfunc(ks)
	if err != nil {
		return LogoutKey{}, err
	}
	return LogoutKey{
		Provider: strings.ToLower(provider),
		Issuer:   issuer,
		Audience: audience,
		keyfunc:  kf,
	}, nil
}

// LogoutClaims are the claims read from a verified logout token.
type LogoutClaims struct {
	Provider  string
	Subject   string
	SessionID string
}

// BackchannelVerifier checks a logout token against every configured provider key.
type BackchannelVerifier struct {
	keys []LogoutKey
	now  func() time.Time
}

// NewBackchannelVerifier creates a verifier over keys.
func NewBackchannelVerifier(keys ...LogoutKey) *BackchannelVerifier {
	return &BackchannelVerifier{keys: keys, now: time.Now}
}

// WithClock replaces the time source used for exp and iat checks.
func (v *BackchannelVerifier) WithClock(now func() time.Time) *BackchannelVerifier {
	if now != nil {
		v.now = now
	}
	return v
}

// Len returns the number of configured keys.
func (v *BackchannelVerifier) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

// Verify returns the claims of raw from the first provider whose key, issuer
// and audience accept it.
func (v *BackchannelVerifier) Verify(raw string) (*LogoutClaims, error) {
	if v == nil || raw == "" {
		return nil, ErrInvalidLogoutToken
	}

	for _, key := range v.keys {
		claims, err := v.verifyWith(key, raw)
		if err == nil {
			return claims, nil
		}
	}
	return nil, ErrInvalidLogoutToken
}

func (v *BackchannelVerifier) verifyWith(key LogoutKey, raw string) (*LogoutClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(v.now),
		jwt.WithIssuedAt(),
	}
	if key.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(key.Issuer))
	}
	if key.Audience != "" {
		opts = append(opts, jwt.WithAudience(key.Audience))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, key.keyfunc, opts...); err != nil {
		return nil, err
	}

	// A logout token must not be usable as an ID token.
	if _, ok := claims["nonce"]; ok {
		return nil, ErrInvalidLogoutToken
	}
	events, ok := claims["events"].(map[string]any)
	if !ok {
		return nil, ErrInvalidLogoutToken
	}
	if _, ok := events[BackchannelLogoutEvent]; !ok {
		return nil, ErrInvalidLogoutToken
	}

	sub, _ := claims["sub"].(string)
	sid, _ := claims["sid"].(string)
	if sub == "" && sid == "" {
		return nil, ErrInvalidLogoutToken
	}

	return &LogoutClaims{Provider: key.Provider, Subject: sub, SessionID: sid}, nil
}
