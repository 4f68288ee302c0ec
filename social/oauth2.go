package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ProfileMapper turns a decoded userinfo document into a Profile.
type ProfileMapper func(raw map[string]any) (*Profile, error)

// OAuth2Config describes a standard authorization code provider.
type OAuth2Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	// AuthParams are appended to every authorization URL.
	AuthParams map[string]string
	HTTPClient *http.Client
}

// OAuth2Provider implements Provider on top of golang.org/x/oauth2.
type OAuth2Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	authParams  map[string]string
	httpClient  *http.Client
	mapProfile  ProfileMapper
}

var _ Provider = (*OAuth2Provider)(nil)

// NewOAuth2Provider builds a provider from cfg. mapper converts the
// userinfo response; it defaults to the OpenID Connect claim names.
func NewOAuth2Provider(cfg OAuth2Config, mapper ProfileMapper) *OAuth2Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if mapper == nil {
		mapper = OIDCProfile(cfg.Name)
	}

	return &OAuth2Provider{
		name: cfg.Name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		authParams:  cfg.AuthParams,
		httpClient:  client,
		mapProfile:  mapper,
	}
}

// Name implements Provider.
func (p *OAuth2Provider) Name() string {
	return p.name
}

// AuthCodeURL implements Provider.
func (p *OAuth2Provider) AuthCodeURL(state string, opts ...AuthCodeOption) string {
	cfg := ApplyAuthCodeOptions(p.config.Scopes, opts...)

	conf := *p.config
	conf.Scopes = cfg.Scopes

	params := make([]oauth2.AuthCodeOption, 0, len(p.authParams)+3)
	for k, v := range p.authParams {
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}
	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", cfg.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}
	if cfg.Prompt != "" {
		params = append(params, oauth2.SetAuthURLParam("prompt", cfg.Prompt))
	}

	return conf.AuthCodeURL(state, params...)
}

// Exchange implements Provider.
func (p *OAuth2Provider) Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error) {
	cfg := ApplyExchangeOptions(opts...)

	var params []oauth2.AuthCodeOption
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	tok, err := p.config.Exchange(p.clientContext(ctx), code, params...)
	if err != nil {
		return nil, wrapProviderError(ErrTokenExchangeFailed, p.name, "token exchange", p.retrieveError(err))
	}

	return fromOAuth2Token(tok, p.config.Scopes), nil
}

// UserInfo implements Provider.
func (p *OAuth2Provider) UserInfo(ctx context.Context, token *Token) (*Profile, error) {
	raw := map[string]any{}
	if err := p.FetchJSON(ctx, token, p.userInfoURL, &raw); err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, p.name, "user info", err)
	}

	profile, err := p.mapProfile(raw)
	if err != nil {
		return nil, wrapProviderError(ErrUserInfoFailed, p.name, "user info", err)
	}
	profile.Provider = p.name
	profile.Raw = raw
	return profile, nil
}

// FetchJSON performs an authenticated GET against url and decodes the body into out.
func (p *OAuth2Provider) FetchJSON(ctx context.Context, token *Token, url string, out any) error {
	if token == nil || token.AccessToken == "" {
		return &ProviderError{Provider: p.name, Operation: "fetch", Description: "missing access token"}
	}

	client := p.config.Client(p.clientContext(ctx), toOAuth2Token(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: p.name, Operation: "fetch", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Provider: p.name, Operation: "fetch", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := &ProviderError{
			Provider:  p.name,
			Operation: "fetch",
			Status:    resp.StatusCode,
		}
		var payload map[string]any
		if json.Unmarshal(body, &payload) == nil {
			perr.Raw = payload
			perr.Code, _ = payload["error"].(string)
			perr.Description, _ = payload["error_description"].(string)
			if perr.Description == "" {
				perr.Description, _ = payload["message"].(string)
			}
		}
		if perr.Description == "" && perr.Code == "" {
			perr.Description = strings.TrimSpace(string(body))
		}
		return perr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: p.name, Operation: "fetch", Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (p *OAuth2Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *OAuth2Provider) retrieveError(err error) error {
	rerr, ok := err.(*oauth2.RetrieveError)
	if !ok {
		return err
	}
	perr := &ProviderError{
		Provider:    p.name,
		Operation:   "token exchange",
		Code:        rerr.ErrorCode,
		Description: rerr.ErrorDescription,
		Err:         err,
	}
	if rerr.Response != nil {
		perr.Status = rerr.Response.StatusCode
	}
	return perr
}

func fromOAuth2Token(tok *oauth2.Token, requested []string) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		Scopes:       requested,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		out.Scopes = strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == ',' })
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out
}

func toOAuth2Token(t *Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

// OIDCProfile maps standard OpenID Connect userinfo claims.
func OIDCProfile(provider string) ProfileMapper {
	return func(raw map[string]any) (*Profile, error) {
		sub := claimString(raw, "sub")
		if sub == "" {
			return nil, &ProviderError{Provider: provider, Operation: "user info", Description: "missing sub claim"}
		}
		return &Profile{
			ProviderUserID: sub,
			Email:          strings.ToLower(claimString(raw, "email")),
			EmailVerified:  claimBool(raw, "email_verified"),
			Name:           claimString(raw, "name"),
			Username:       claimString(raw, "preferred_username"),
			AvatarURL:      claimString(raw, "picture"),
		}, nil
	}
}

func claimString(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func claimBool(raw map[string]any, key string) bool {
	switch v := raw[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// ClaimString reads a string claim, formatting numeric ids without exponent.
func ClaimString(raw map[string]any, key string) string {
	return claimString(raw, key)
}
