// Package google configures Google as a federated identity provider.
package google

import (
	"net/http"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	"github.com/allergysnatcher/auth/social"
)

const (
	// Name is the registry key of the provider.
	Name = "google"

	// Issuer is the iss claim of Google issued tokens.
	Issuer = "https://accounts.google.com"

	// JWKSURL serves Google's token signing keys.
	JWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	// Endpoint and UserInfoURL override Google's for tests.
	Endpoint    oauth2.Endpoint
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// New creates the Google provider. Google speaks standard OpenID Connect
// userinfo, so profiles are read from the sub, email and name claims.
func New(cfg Config) *social.OAuth2Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = googleoauth.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return social.NewOAuth2Provider(social.OAuth2Config{
		Name:         Name,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		Endpoint:     cfg.Endpoint,
		UserInfoURL:  cfg.UserInfoURL,
		AuthParams:   map[string]string{"access_type": "offline"},
		HTTPClient:   cfg.HTTPClient,
	}, social.OIDCProfile(Name))
}
