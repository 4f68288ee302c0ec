package jwtware

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestKeyfuncOptionsRefreshErrorHandlerIsSafe(t *testing.T) {
	opts := keyfuncOptions(nil, nil)
	require.NotNil(t, opts.RefreshErrorHandler)
	require.NotPanics(t, func() {
		opts.RefreshErrorHandler(errors.New("refresh failed"))
	})

	require.Equal(t, time.Hour, opts.RefreshInterval)
	require.Equal(t, 5*time.Minute, opts.RefreshRateLimit)
	require.Equal(t, 10*time.Second, opts.RefreshTimeout)
	require.True(t, opts.RefreshUnknownKID)
}

func TestSigningKeyFuncRejectsWrongAlgorithm(t *testing.T) {
	kf := signingKeyFunc(SigningKey{JWTAlg: "HS256", Key: []byte("secret")})

	_, err := kf(&jwt.Token{Header: map[string]any{"alg": "RS256"}})
	require.Error(t, err)

	_, err = kf(&jwt.Token{Header: map[string]any{}})
	require.Error(t, err)

	key, err := kf(&jwt.Token{Header: map[string]any{"alg": "HS256"}})
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), key)
}
