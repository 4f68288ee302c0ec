// Package github configures GitHub as a federated identity provider.
package github

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"

	"github.com/allergysnatcher/auth/social"
)

const (
	// Name is the registry key of the provider.
	Name = "github"

	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	// Endpoint, UserURL and EmailsURL override GitHub's for tests.
	Endpoint  oauth2.Endpoint
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider implements social.Provider for GitHub. GitHub is not OpenID
// Connect: the profile comes from the REST user endpoint and the verified
// primary email from the emails endpoint.
type Provider struct {
	*social.OAuth2Provider
	emailsURL string
}

var _ social.Provider = (*Provider)(nil)

// New creates the GitHub provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.Endpoint.AuthURL == "" {
		cfg.Endpoint = githuboauth.Endpoint
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	return &Provider{
		OAuth2Provider: social.NewOAuth2Provider(social.OAuth2Config{
			Name:         Name,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
			UserInfoURL:  cfg.UserURL,
			HTTPClient:   cfg.HTTPClient,
		}, mapUser),
		emailsURL: cfg.EmailsURL,
	}
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// UserInfo implements social.Provider.
func (p *Provider) UserInfo(ctx context.Context, token *social.Token) (*social.Profile, error) {
	profile, err := p.OAuth2Provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	var emails []githubEmail
	if err := p.FetchJSON(ctx, token, p.emailsURL, &emails); err != nil {
		// The public profile email is kept but never trusted as verified.
		profile.EmailVerified = false
		return profile, nil
	}

	if email, ok := primaryEmail(emails); ok {
		profile.Email = strings.ToLower(email.Email)
		profile.EmailVerified = email.Verified
	}
	return profile, nil
}

func primaryEmail(emails []githubEmail) (githubEmail, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e, true
		}
	}
	return githubEmail{}, false
}

func mapUser(raw map[string]any) (*social.Profile, error) {
	id := social.ClaimString(raw, "id")
	if id == "" {
		return nil, &social.ProviderError{Provider: Name, Operation: "user info", Description: "missing user id"}
	}
	login := social.ClaimString(raw, "login")
	return &social.Profile{
		ProviderUserID: id,
		Email:          strings.ToLower(social.ClaimString(raw, "email")),
		Name:           social.ClaimString(raw, "name"),
		Username:       login,
		AvatarURL:      social.ClaimString(raw, "avatar_url"),
	}, nil
}
