package social

import (
	"context"
	"strings"
	"time"

	"github.com/allergysnatcher/auth"
)

// Authenticator orchestrates federated login flows: it sends the browser to
// the provider, resolves the returning identity and opens a session.
type Authenticator struct {
	providers            *Registry
	stateManager         StateManager
	linker               *Linker
	sessions             *auth.SessionManager
	handoff              *HandoffStore
	logger               auth.Logger
	activity             auth.ActivitySink
	requireVerifiedEmail bool
	now                  func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithAuthenticatorLogger sets the logger.
func WithAuthenticatorLogger(l auth.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = auth.ResolveLogger("social.authenticator", nil, l)
	}
}

// WithAuthenticatorActivitySink records social login events.
func WithAuthenticatorActivitySink(s auth.ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		if s != nil {
			a.activity = s
		}
	}
}

// WithRequireVerifiedEmail rejects identities whose email the provider did not verify.
func WithRequireVerifiedEmail(v bool) AuthenticatorOption {
	return func(a *Authenticator) {
		a.requireVerifiedEmail = v
	}
}

// WithAuthenticatorClock replaces the time source.
func WithAuthenticatorClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(
	providers *Registry,
	stateManager StateManager,
	linker *Linker,
	sessions *auth.SessionManager,
	handoff *HandoffStore,
	opts ...AuthenticatorOption,
) *Authenticator {
	a := &Authenticator{
		providers:            providers,
		stateManager:         stateManager,
		linker:               linker,
		sessions:             sessions,
		handoff:              handoff,
		logger:               auth.ResolveLogger("social.authenticator", nil, nil),
		activity:             auth.ActivitySinkFunc(nil),
		requireVerifiedEmail: true,
		now:                  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Providers returns the configured provider names.
func (a *Authenticator) Providers() []string {
	return a.providers.Names()
}

// AuthRedirect is where the browser goes to start a federated login.
type AuthRedirect struct {
	URL      string
	State    string
	Provider string
}

// BeginAuth builds the provider authorization URL with encrypted state and PKCE.
// returnTo is kept in the state and must be a local path.
func (a *Authenticator) BeginAuth(ctx context.Context, providerName, returnTo string) (*AuthRedirect, error) {
	provider, err := a.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return nil, err
	}

	state := &OAuthState{
		Provider:     provider.Name(),
		CodeVerifier: verifier,
		ReturnTo:     SafeReturnPath(returnTo),
	}

	token, err := a.stateManager.Encode(state)
	if err != nil {
		return nil, err
	}

	return &AuthRedirect{
		URL:      provider.AuthCodeURL(token, WithPKCE(computeCodeChallenge(verifier), "S256")),
		State:    token,
		Provider: provider.Name(),
	}, nil
}

// AuthResult is the outcome of a completed federated login.
type AuthResult struct {
	Login *auth.LoginResult
	// HandoffCode redeems the session token through the exchange endpoint.
	HandoffCode string
	ReturnTo    string
	Created     bool
	Linked      bool
}

// CompleteAuth verifies state, exchanges the code, resolves the identity and
// opens a session for it.
func (a *Authenticator) CompleteAuth(ctx context.Context, providerName, code, stateToken string, meta auth.RequestMeta) (*AuthResult, error) {
	state, err := a.stateManager.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(state.Provider, providerName) {
		return nil, ErrInvalidState
	}

	provider, err := a.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	token, err := provider.Exchange(ctx, code, WithCodeVerifier(state.CodeVerifier))
	if err != nil {
		return nil, err
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	if a.requireVerifiedEmail && profile.Email != "" && !profile.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	link, err := a.linker.ResolveOrCreate(ctx, Identity{
		Provider:    provider.Name(),
		Subject:     profile.ProviderUserID,
		Email:       profile.Email,
		DisplayHint: profile.DisplayName(),
		Token:       token,
	})
	if err != nil {
		return nil, err
	}

	login, err := a.sessions.LoginUser(ctx, link.User, meta)
	if err != nil {
		return nil, err
	}

	code, err = a.handoff.Issue(ctx, Handoff{
		SessionToken:     login.Credentials.SessionToken,
		SessionExpiresAt: login.Credentials.SessionExpiresAt,
		UserID:           login.User.ID.String(),
	})
	if err != nil {
		return nil, err
	}

	if err := a.activity.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventSocialLogin,
		UserID:     login.User.ID.String(),
		SessionID:  login.Session.ID,
		Metadata:   map[string]any{"provider": provider.Name(), "created": link.Created, "linked": link.Linked},
		OccurredAt: a.now(),
	}); err != nil {
		a.logger.Warn("activity sink failed", "event", string(auth.ActivityEventSocialLogin), "error", err)
	}

	return &AuthResult{
		Login:       login,
		HandoffCode: code,
		ReturnTo:    state.ReturnTo,
		Created:     link.Created,
		Linked:      link.Linked,
	}, nil
}

// Redeem exchanges a one-time handoff code for the session it carries.
func (a *Authenticator) Redeem(ctx context.Context, code string) (*Handoff, error) {
	return a.handoff.Redeem(ctx, code)
}

// SafeReturnPath keeps only local absolute paths, anything else becomes "/".
func SafeReturnPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return "/"
	}
	return p
}
