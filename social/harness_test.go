package social_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/kv"
	"github.com/allergysnatcher/auth/repository"
	"github.com/allergysnatcher/auth/social"
)

var (
	stateKey = []byte("0123456789abcdef0123456789abcdef")
	hmacKey  = []byte("fedcba9876543210fedcba9876543210")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	repo     auth.RepositoryManager
	clock    *fakeClock
	sink     *recordingSink
	sessions *auth.SessionManager
	linker   *social.Linker
	register *auth.RegisterUserHandler
	store    *kv.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db))

	h := &harness{
		repo:  repository.NewRepositoryManager(db),
		clock: &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		sink:  &recordingSink{},
	}
	h.store = kv.NewMemory(h.clock.Now)

	issuer, err := auth.NewTokenIssuer(0, 0)
	require.NoError(t, err)

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	h.sessions = auth.NewSessionManager(
		h.repo,
		issuer,
		auth.NewUserProvider(h.repo.Users(), hasher),
		auth.WithClock(h.clock.Now),
	)
	h.linker = social.NewLinker(h.repo, h.sessions,
		social.WithLinkerClock(h.clock.Now),
		social.WithLinkerActivitySink(h.sink),
	)
	h.register = auth.NewRegisterUserHandler(h.repo, hasher, "").WithClock(h.clock.Now)
	return h
}

func (h *harness) user(t *testing.T, username string) *auth.User {
	t.Helper()
	user, err := h.register.Execute(context.Background(), auth.RegisterUserMessage{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw123",
	})
	require.NoError(t, err)
	return user
}

// fakeProvider answers every exchange with a fixed profile.
type fakeProvider struct {
	name     string
	profile  social.Profile
	verifier string
	fail     error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(nil, opts...)
	return "https://idp.example.com/authorize?state=" + state + "&code_challenge=" + cfg.CodeChallenge
}

func (p *fakeProvider) Exchange(_ context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	if p.fail != nil {
		return nil, p.fail
	}
	p.verifier = social.ApplyExchangeOptions(opts...).CodeVerifier
	return &social.Token{AccessToken: "access-" + code, RefreshToken: "provider-refresh"}, nil
}

func (p *fakeProvider) UserInfo(context.Context, *social.Token) (*social.Profile, error) {
	profile := p.profile
	profile.Provider = p.name
	return &profile, nil
}
