package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/allergysnatcher/auth/social"
)

func newServer(t *testing.T, emails http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "gh-access",
				"token_type":   "bearer",
				"scope":        "user:email,read:user",
			})
		case "/user":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":         1234567,
				"login":      "octocat",
				"name":       "",
				"email":      "public@example.com",
				"avatar_url": "https://example.com/o.png",
			})
		case "/user/emails":
			emails(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newProvider(server *httptest.Server) *Provider {
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://example.com/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.URL + "/authorize",
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserURL:    server.URL + "/user",
		EmailsURL:  server.URL + "/user/emails",
		HTTPClient: server.Client(),
	})
}

func TestGitHubProfileUsesVerifiedPrimaryEmail(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "Octo@Example.com", "primary": true, "verified": true},
		})
	})
	provider := newProvider(server)
	ctx := context.Background()

	token, err := provider.Exchange(ctx, "code")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:email", "read:user"}, token.Scopes)

	profile, err := provider.UserInfo(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "1234567", profile.ProviderUserID)
	assert.Equal(t, "octo@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "octocat", profile.DisplayName(), "falls back to the login")
}

func TestGitHubProfileWithoutEmailAccess(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Resource not accessible by integration"})
	})
	provider := newProvider(server)

	profile, err := provider.UserInfo(context.Background(), &social.Token{AccessToken: "gh-access"})
	require.NoError(t, err)
	assert.Equal(t, "public@example.com", profile.Email)
	assert.False(t, profile.EmailVerified)
}

func TestGitHubAuthCodeURL(t *testing.T) {
	provider := New(Config{ClientID: "client-id", CallbackURL: "https://example.com/cb"})
	assert.Contains(t, provider.AuthCodeURL("s"), "https://github.com/login/oauth/authorize?")
	assert.Equal(t, Name, provider.Name())
}
