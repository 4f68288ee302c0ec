package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/config"
	"github.com/allergysnatcher/auth/middleware/jwtware"
	"github.com/allergysnatcher/auth/social"
	"github.com/allergysnatcher/auth/social/providers/github"
	"github.com/allergysnatcher/auth/social/providers/google"
	"github.com/allergysnatcher/auth/social/providers/oidc"
)

// buildProviders creates one provider per enabled config entry.
func buildProviders(cfg config.OAuthConfig, client *http.Client) (*social.Registry, error) {
	providers := make([]social.Provider, 0, len(cfg.Providers))

	for _, name := range cfg.Enabled() {
		p := cfg.Providers[name]

		if (p.Kind == config.KindGoogle || p.Kind == config.KindGitHub) && name != p.Kind {
			return nil, fmt.Errorf("provider %q: %s providers must be named %q", name, p.Kind, p.Kind)
		}

		switch p.Kind {
		case config.KindGoogle:
			providers = append(providers, google.New(google.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				CallbackURL:  p.RedirectURL,
				Scopes:       p.Scopes,
				UserInfoURL:  p.UserInfoURL,
				HTTPClient:   client,
			}))
		case config.KindGitHub:
			providers = append(providers, github.New(github.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				CallbackURL:  p.RedirectURL,
				Scopes:       p.Scopes,
				HTTPClient:   client,
			}))
		case config.KindOIDC:
			providers = append(providers, oidc.New(oidc.Config{
				Name:         name,
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				CallbackURL:  p.RedirectURL,
				Scopes:       p.Scopes,
				AuthURL:      p.AuthURL,
				TokenURL:     p.TokenURL,
				UserInfoURL:  p.UserInfoURL,
				HTTPClient:   client,
			}))
		default:
			return nil, fmt.Errorf("provider %q: unknown kind %q", name, p.Kind)
		}
	}

	return social.NewRegistry(providers...)
}

// buildLogoutKeys returns the back-channel logout keys of every enabled
// provider that has them. A provider whose JWKS cannot be fetched is logged
// and left out; its logout tokens are then acknowledged without effect.
func buildLogoutKeys(cfg config.OAuthConfig, logger auth.Logger) []social.LogoutKey {
	keys := make([]social.LogoutKey, 0, len(cfg.Providers))

	for _, name := range cfg.Enabled() {
		p := cfg.Providers[name]

		issuer, jwksURL := p.Issuer, p.JWKSURL
		if p.Kind == config.KindGoogle {
			if issuer == "" {
				issuer = google.Issuer
			}
			if jwksURL == "" && p.BackchannelSecret == "" {
				jwksURL = google.JWKSURL
			}
		}

		var ks jwtware.KeySet
		switch {
		case p.BackchannelSecret != "":
			ks.SigningKey = jwtware.SigningKey{JWTAlg: jwt.SigningMethodHS256.Alg(), Key: []byte(p.BackchannelSecret)}
		case jwksURL != "":
			ks.JWKSetURLs = []string{jwksURL}
			ks.RefreshErrorHandler = func(err error) {
				logger.Warn("jwks refresh failed", "provider", name, "error", err)
			}
		default:
			continue
		}

		key, err := social.NewLogoutKey(name, issuer, p.ClientID, ks)
		if err != nil {
			logger.Warn("back-channel logout disabled", "provider", name, "error", err)
			continue
		}
		keys = append(keys, key)
	}

	return keys
}

func providerHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
