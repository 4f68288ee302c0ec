package jwtware

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SigningKey is a verification key with the algorithm it must be used with.
type SigningKey struct {
	JWTAlg string
	Key    any
}

// KeySet describes where verification keys for signed JWTs come from.
// SigningKeys are matched by kid, SigningKey is used when no kid matches
// or none is set, JWKSetURLs are fetched and refreshed in the background.
type KeySet struct {
	SigningKey  SigningKey
	SigningKeys map[string]SigningKey
	JWKSetURLs  []string
	// RefreshErrorHandler receives background JWKS refresh failures.
	RefreshErrorHandler func(err error)
}

// ErrNoKeys is returned by NewKeyfunc for an empty KeySet.
var ErrNoKeys = errors.New("no verification keys configured")

// NewKeyfunc builds a jwt.Keyfunc from ks.
func NewKeyfunc(ks KeySet) (jwt.Keyfunc, error) {
	if ks.SigningKey.Key == nil && len(ks.SigningKeys) == 0 && len(ks.JWKSetURLs) == 0 {
		return nil, ErrNoKeys
	}

	if len(ks.SigningKeys) == 0 && len(ks.JWKSetURLs) == 0 {
		return signingKeyFunc(ks.SigningKey), nil
	}

	var givenKeys map[string]keyfunc.GivenKey
	if len(ks.SigningKeys) > 0 {
		givenKeys = make(map[string]keyfunc.GivenKey, len(ks.SigningKeys))
		for kid, key := range ks.SigningKeys {
			givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
				Algorithm: key.JWTAlg,
			})
		}
	}

	var kf jwt.Keyfunc
	if len(ks.JWKSetURLs) > 0 {
		var err error
		kf, err = multiKeyfunc(givenKeys, ks.JWKSetURLs, ks.RefreshErrorHandler)
		if err != nil {
			return nil, err
		}
	} else {
		kf = keyfunc.NewGiven(givenKeys).Keyfunc
	}

	if ks.SigningKey.Key == nil {
		return kf, nil
	}

	fallback := signingKeyFunc(ks.SigningKey)
	return func(token *jwt.Token) (any, error) {
		if key, err := kf(token); err == nil {
			return key, nil
		}
		return fallback(token)
	}, nil
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, jwkSetURLs []string, onErr func(error)) (jwt.Keyfunc, error) {
	opts := keyfuncOptions(givenKeys, onErr)
	m := make(map[string]keyfunc.Options, len(jwkSetURLs))
	for _, url := range jwkSetURLs {
		m[url] = opts
	}
	mopts := keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	}
	multi, err := keyfunc.GetMultiple(m, mopts)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWK sets: %w", err)
	}
	return multi.Keyfunc, nil
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey, onErr func(error)) keyfunc.Options {
	if onErr == nil {
		onErr = func(error) {}
	}
	return keyfunc.Options{
		GivenKeys:           givenKeys,
		RefreshErrorHandler: onErr,
		RefreshInterval:     time.Hour,
		RefreshRateLimit:    time.Minute * 5,
		RefreshTimeout:      time.Second * 10,
		RefreshUnknownKID:   true,
	}
}

func signingKeyFunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg != "" {
			alg, ok := token.Header["alg"].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected JWT signing method: expected %q got: missing alg", key.JWTAlg)
			}
			if alg != key.JWTAlg {
				return nil, fmt.Errorf("unexpected JWT signing method: expected: %q: got: %q", key.JWTAlg, alg)
			}
		}
		return key.Key, nil
	}
}
