// Package oidc configures a generic OpenID Connect identity provider from
// explicit endpoint URLs.
package oidc

import (
	"net/http"

	"golang.org/x/oauth2"

	"github.com/allergysnatcher/auth/social"
)

// Config holds the endpoints and client of an OpenID Connect provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default OpenID Connect scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// New creates the provider.
func New(cfg Config) *social.OAuth2Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	return social.NewOAuth2Provider(social.OAuth2Config{
		Name:         cfg.Name,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: cfg.UserInfoURL,
		HTTPClient:  cfg.HTTPClient,
	}, social.OIDCProfile(cfg.Name))
}
