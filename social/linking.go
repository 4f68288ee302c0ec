package social

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
)

// LinkResult describes how a federated identity was resolved.
type LinkResult struct {
	User    *auth.User
	Account *auth.OAuthAccount
	// Created is set when a new user was registered for the identity.
	Created bool
	// Linked is set when the identity was attached to an existing user by email.
	Linked bool
}

// Identity is the provider side of a federated login.
type Identity struct {
	Provider    string
	Subject     string
	Email       string
	DisplayHint string
	Token       *Token
}

// Linker resolves federated identities to local users.
type Linker struct {
	repo     auth.RepositoryManager
	sessions *auth.SessionManager
	logger   auth.Logger
	activity auth.ActivitySink
	now      func() time.Time
}

// LinkerOption configures a Linker.
type LinkerOption func(*Linker)

// WithLinkerLogger sets the logger.
func WithLinkerLogger(l auth.Logger) LinkerOption {
	return func(k *Linker) {
		k.logger = auth.ResolveLogger("social.linker", nil, l)
	}
}

// WithLinkerActivitySink records link, create and back-channel events.
func WithLinkerActivitySink(s auth.ActivitySink) LinkerOption {
	return func(k *Linker) {
		if s != nil {
			k.activity = s
		}
	}
}

// WithLinkerClock replaces the time source.
func WithLinkerClock(now func() time.Time) LinkerOption {
	return func(k *Linker) {
		if now != nil {
			k.now = now
		}
	}
}

// NewLinker creates a Linker. sessions is used by UnlinkBySubject.
func NewLinker(repo auth.RepositoryManager, sessions *auth.SessionManager, opts ...LinkerOption) *Linker {
	k := &Linker{
		repo:     repo,
		sessions: sessions,
		logger:   auth.ResolveLogger("social.linker", nil, nil),
		activity: auth.ActivitySinkFunc(nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k
}

// ResolveOrCreate maps (provider, subject) to a user. A known link returns
// its user untouched. Otherwise a user with the same email gets the link,
// and failing that a new user plus link is created in one transaction.
// Losing a concurrent first login to a uniqueness violation re-runs the
// lookup once.
func (k *Linker) ResolveOrCreate(ctx context.Context, id Identity) (*LinkResult, error) {
	id.Provider = strings.ToLower(strings.TrimSpace(id.Provider))
	id.Subject = strings.TrimSpace(id.Subject)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))

	if id.Provider == "" || id.Subject == "" {
		return nil, auth.ErrUnauthenticated
	}

	res, err := k.resolve(ctx, id)
	if auth.IsConflict(err) {
		k.logger.Debug("concurrent link detected, retrying lookup", "provider", id.Provider)
		res, err = k.resolve(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case res.Created:
		k.emit(ctx, auth.ActivityEventAccountCreated, res)
	case res.Linked:
		k.emit(ctx, auth.ActivityEventAccountLinked, res)
	default:
		k.storeTokens(ctx, res.Account, id.Token)
	}
	return res, nil
}

func (k *Linker) resolve(ctx context.Context, id Identity) (*LinkResult, error) {
	account, err := k.repo.OAuthAccounts().FindByProviderSubject(ctx, id.Provider, id.Subject)
	switch {
	case err == nil:
		user, err := k.repo.Users().GetByID(ctx, account.UserID)
		if err != nil {
			return nil, err
		}
		return &LinkResult{User: user, Account: account}, nil
	case !auth.IsNotFound(err):
		return nil, err
	}

	if id.Email == "" {
		return nil, ErrEmailMissing
	}

	res := &LinkResult{}
	err = k.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := k.repo.Users().GetByEmailTx(ctx, tx, id.Email)
		switch {
		case err == nil:
			res.Linked = true
		case auth.IsNotFound(err):
			now := k.now()
			user = (&auth.User{
				ID:        uuid.New(),
				Username:  id.Email,
				Email:     id.Email,
				Role:      auth.RoleUser,
				CreatedAt: now,
				UpdatedAt: now,
			}).NameFromDisplay(id.DisplayHint)
			if user, err = k.repo.Users().CreateTx(ctx, tx, user); err != nil {
				return err
			}
			res.Created = true
		default:
			return err
		}

		link := newAccount(user.ID, id)
		if link, err = k.repo.OAuthAccounts().CreateTx(ctx, tx, link); err != nil {
			return err
		}

		res.User = user
		res.Account = link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UnlinkBySubject revokes every session of the user behind (provider, subject).
// The link itself is kept so the next login resolves to the same user.
// An unknown subject is a no-op.
func (k *Linker) UnlinkBySubject(ctx context.Context, provider, subject string) (int, error) {
	account, err := k.repo.OAuthAccounts().FindByProviderSubject(ctx, strings.ToLower(provider), subject)
	if auth.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n, err := k.sessions.BulkRevoke(ctx, account.UserID, auth.RevokeReasonBackchannel)
	if err != nil {
		return 0, err
	}

	k.record(ctx, auth.ActivityEvent{
		EventType: auth.ActivityEventBackchannelLogout,
		UserID:    account.UserID.String(),
		Metadata:  map[string]any{"provider": account.Provider, "revoked": n},
	})
	return n, nil
}

func (k *Linker) storeTokens(ctx context.Context, account *auth.OAuthAccount, tok *Token) {
	if account == nil || tok == nil || tok.AccessToken == "" {
		return
	}
	applyToken(account, tok)
	if err := k.repo.OAuthAccounts().UpdateTokens(ctx, account); err != nil {
		k.logger.Warn("failed to store provider tokens", "provider", account.Provider, "error", err)
	}
}

func (k *Linker) emit(ctx context.Context, kind auth.ActivityEventType, res *LinkResult) {
	k.record(ctx, auth.ActivityEvent{
		EventType: kind,
		UserID:    res.User.ID.String(),
		Metadata:  map[string]any{"provider": res.Account.Provider},
	})
}

func (k *Linker) record(ctx context.Context, event auth.ActivityEvent) {
	event.OccurredAt = k.now()
	if err := k.activity.Record(ctx, event); err != nil {
		k.logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}

func newAccount(userID uuid.UUID, id Identity) *auth.OAuthAccount {
	account := &auth.OAuthAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       id.Provider,
		ProviderUserID: id.Subject,
	}
	applyToken(account, id.Token)
	return account
}

func applyToken(account *auth.OAuthAccount, tok *Token) {
	if tok == nil {
		return
	}
	account.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		account.RefreshToken = tok.RefreshToken
	}
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt.UTC()
		account.ExpiresAt = &exp
	}
	if len(tok.Scopes) > 0 {
		account.Scopes = strings.Join(tok.Scopes, " ")
	}
}
