package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/config"
)

func testLogger() auth.Logger {
	return auth.NewLoggerProvider(io.Discard, "text", "error").GetLogger("test")
}

func TestBuildProviders(t *testing.T) {
	cfg := config.OAuthConfig{
		Providers: map[string]config.ProviderConfig{
			"google": {Kind: config.KindGoogle, ClientID: "g-id", ClientSecret: "g-secret", RedirectURL: "http://localhost/cb/google"},
			"github": {Kind: config.KindGitHub, ClientID: "gh-id", ClientSecret: "gh-secret", RedirectURL: "http://localhost/cb/github"},
			"corp": {
				Kind:        config.KindOIDC,
				ClientID:    "corp-id",
				RedirectURL: "http://localhost/cb/corp",
				AuthURL:     "https://sso.example.com/authorize",
				TokenURL:    "https://sso.example.com/token",
				UserInfoURL: "https://sso.example.com/userinfo",
			},
			"disabled": {Kind: config.KindOIDC},
		},
	}

	registry, err := buildProviders(cfg, providerHTTPClient())
	require.NoError(t, err)
	assert.Equal(t, []string{"corp", "github", "google"}, registry.Names())

	p, err := registry.Get("corp")
	require.NoError(t, err)
	assert.Equal(t, "corp", p.Name())
}

func TestBuildProvidersRejectsMisnamedKinds(t *testing.T) {
	cfg := config.OAuthConfig{
		Providers: map[string]config.ProviderConfig{
			"work": {Kind: config.KindGoogle, ClientID: "g-id"},
		},
	}

	_, err := buildProviders(cfg, providerHTTPClient())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `must be named "google"`)
}

func TestBuildProvidersUnknownKind(t *testing.T) {
	cfg := config.OAuthConfig{
		Providers: map[string]config.ProviderConfig{
			"saml": {Kind: "saml", ClientID: "id"},
		},
	}

	_, err := buildProviders(cfg, providerHTTPClient())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestBuildLogoutKeys(t *testing.T) {
	cfg := config.OAuthConfig{
		Providers: map[string]config.ProviderConfig{
			"google": {
				Kind:              config.KindGoogle,
				ClientID:          "g-id",
				BackchannelSecret: "google-logout-secret-0123456789ab",
			},
			"corp": {
				Kind:              config.KindOIDC,
				ClientID:          "corp-id",
				Issuer:            "https://sso.example.com",
				BackchannelSecret: "corp-logout-secret-0123456789abcd",
			},
			"github": {Kind: config.KindGitHub, ClientID: "gh-id"},
		},
	}

	keys := buildLogoutKeys(cfg, testLogger())
	require.Len(t, keys, 2)

	byProvider := map[string]string{}
	for _, k := range keys {
		byProvider[k.Provider] = k.Issuer
		assert.NotEmpty(t, k.Audience)
	}
	assert.Equal(t, "https://accounts.google.com", byProvider["google"])
	assert.Equal(t, "https://sso.example.com", byProvider["corp"])
}
